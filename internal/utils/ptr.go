package utils

// Ptr returns a pointer to a copy of v. Handy for filling optional patch fields.
func Ptr[T any](v T) *T {
	return &v
}
