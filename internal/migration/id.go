package migration

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const (
	idTimeLayout  = "20060102150405"
	tokenLength   = 8
	maxSlugLength = 50
)

// NewID derives a migration id from the creation instant and a random token.
func NewID(now time.Time) string {
	return IDWithToken(now, RandomToken())
}

// IDWithToken builds an id from an explicit token.
func IDWithToken(now time.Time, token string) string {
	return now.UTC().Format(idTimeLayout) + "_" + token
}

// RandomToken returns a short random hex token.
func RandomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
}

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single underscore.
func Slugify(s string) string {
	var b strings.Builder

	pendingSep := false

	for _, r := range strings.ToLower(s) {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			pendingSep = b.Len() > 0
			continue
		}

		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}

		b.WriteRune(r)
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "_")
	}

	if slug == "" {
		return "migration"
	}

	return slug
}
