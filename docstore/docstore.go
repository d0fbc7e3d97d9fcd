// Package docstore models a hierarchical document database: documents live at
// slash separated paths (collection/doc/collection/doc...) and hold JSON-like field maps.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxBatchWrites is the largest number of writes a single Commit accepts.
const MaxBatchWrites = 500

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrInvalidPath   = errors.New("docstore: invalid path")
	ErrBatchTooLarge = fmt.Errorf("docstore: batch exceeds %d writes", MaxBatchWrites)
)

// Store is implemented by every document store driver.
type Store interface {
	// Get returns ErrNotFound when no document exists at path.
	Get(ctx context.Context, path string) (*Document, error)
	// Set replaces the document at path.
	Set(ctx context.Context, path string, data map[string]any) error
	// Merge writes the given top-level fields, creating the document if needed. A field set
	// to DeleteField is removed.
	Merge(ctx context.Context, path string, data map[string]any) error
	// Delete removes the document at path. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error
	// List returns the direct children of a collection ordered by path.
	List(ctx context.Context, collection string) ([]*Document, error)
	// Commit applies writes atomically.
	Commit(ctx context.Context, writes []Write) error
	Close() error
}

// Document is a stored document.
type Document struct {
	Path       string
	Data       map[string]any
	UpdateTime time.Time
}

// ID is the last segment of the document path.
func (d *Document) ID() string {
	return d.Path[strings.LastIndex(d.Path, "/")+1:]
}

type sentinel struct{ name string }

// DeleteField removes a field when used as a value in Merge.
var DeleteField any = &sentinel{name: "delete"}

// WriteKind selects the operation of a batched Write.
type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteMerge
	WriteDelete
)

// Write is one mutation in a Commit.
type Write struct {
	Kind WriteKind
	Path string
	Data map[string]any
}

func SetWrite(path string, data map[string]any) Write {
	return Write{Kind: WriteSet, Path: path, Data: data}
}

func MergeWrite(path string, data map[string]any) Write {
	return Write{Kind: WriteMerge, Path: path, Data: data}
}

func DeleteWrite(path string) Write {
	return Write{Kind: WriteDelete, Path: path}
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Parent returns the collection that holds the document at path.
func Parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// ValidateDocumentPath checks that path names a document: an even number of non-empty segments.
func ValidateDocumentPath(path string) error {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 0 {
		return fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, path)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// ValidateCollectionPath checks that path names a collection: an odd number of non-empty segments.
func ValidateCollectionPath(path string) error {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 1 {
		return fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, path)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// ValidateBatch checks the size of a batch and every path in it.
func ValidateBatch(writes []Write) error {
	if len(writes) > MaxBatchWrites {
		return ErrBatchTooLarge
	}
	for _, w := range writes {
		if err := ValidateDocumentPath(w.Path); err != nil {
			return err
		}
		switch w.Kind {
		case WriteSet, WriteMerge, WriteDelete:
		default:
			return fmt.Errorf("docstore: unknown write kind %d", w.Kind)
		}
	}
	return nil
}

// Apply computes the document contents after w is applied to current. It returns a nil map
// when the write deletes the document.
func Apply(current map[string]any, w Write) (map[string]any, error) {
	switch w.Kind {
	case WriteDelete:
		return nil, nil
	case WriteSet:
		return Normalize(stripDeletes(w.Data))
	case WriteMerge:
		next := make(map[string]any, len(current)+len(w.Data))
		for k, v := range current {
			next[k] = v
		}
		for k, v := range w.Data {
			if v == DeleteField {
				delete(next, k)
				continue
			}
			next[k] = v
		}
		return Normalize(next)
	default:
		return nil, fmt.Errorf("docstore: unknown write kind %d", w.Kind)
	}
}

func stripDeletes(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v != DeleteField {
			out[k] = v
		}
	}
	return out
}
