package core

import (
	"strings"

	"github.com/google/uuid"
)

// idHexLen is the number of random hex characters after the kind prefix.
const idHexLen = 12

// NewID returns "<prefix>_" followed by 12 random hex characters.
func NewID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:idHexLen]
}
