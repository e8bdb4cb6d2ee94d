package models

import (
	"strings"

	"github.com/google/uuid"
)

// ShortID returns an 8 character identifier taken from a random UUID with
// the dashes removed. Projects, templates and deploy attempts are keyed by it.
func ShortID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
