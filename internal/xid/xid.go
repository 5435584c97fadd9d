package xid

import "github.com/google/uuid"

// New returns a time-ordered UUID, falling back to a random one.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func Valid(id string) bool {
	return uuid.Validate(id) == nil
}
