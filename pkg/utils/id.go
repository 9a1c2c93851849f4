package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier prefixed with the entity kind,
// e.g. "auction_3f0c...".
func GenerateID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "_" + uuid.NewString()
}
