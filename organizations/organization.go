package organizations

import (
	"slices"
	"time"
)

// Organization is a customer account. Connections, provider credentials and members
// hang off its document.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MemberIDs []string  `json:"memberIds,omitempty"` // user ids, used to find per-user legacy connections
	CreatedAt time.Time `json:"createdAt"`
}

func (o *Organization) HasMember(userID string) bool {
	return slices.Contains(o.MemberIDs, userID)
}
