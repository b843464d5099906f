package shared_models

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the caller's role as asserted by the identity token.
type Role string

const (
	RoleClient Role = "client"
	RoleHost   Role = "host"
	RoleAgent  Role = "agent"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleClient, RoleHost, RoleAgent:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Actor identifies who is driving a booking transition.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

func (a Actor) IsAgent() bool { return a.Role == RoleAgent }

// System is used for transitions driven by the sweep and by payment reconciliation.
var System = Actor{Role: RoleAgent}

// GenerateUUIDv7 generates a time ordered identifier.
func GenerateUUIDv7() (uuid.UUID, error) {
	return uuid.NewV7()
}
