package config

import (
	"net/url"
	"regexp"
	"strings"
)

const placeholder = "REDACTED"

var kvPassword = regexp.MustCompile(`(?i)(\bpassword\s*=\s*)('(?:[^'\\]|\\.)*'|\S+)`)

// RedactURL masks the password of a PostgreSQL connection string so it can
// be printed or logged. Both URL form (postgres://user:pw@host/db) and
// keyword/value form (host=... password=...) are handled. Strings with no
// password are returned unchanged.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}

	if !strings.Contains(raw, "://") {
		return kvPassword.ReplaceAllString(raw, "${1}***")
	}

	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}

	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}

	u.User = url.UserPassword(u.User.Username(), placeholder)

	return strings.Replace(u.String(), ":"+placeholder+"@", ":***@", 1)
}
