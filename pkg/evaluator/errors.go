package evaluator

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	unixPathPattern = regexp.MustCompile(`(?:^|[\s'"(=])(/[a-zA-Z0-9_\-.]+(?:/[a-zA-Z0-9_\-.]+)+)`)
	winPathPattern  = regexp.MustCompile(`[A-Za-z]:\\[a-zA-Z0-9\\_\-.]+`)
	userPattern     = regexp.MustCompile(`(user|host)\s+'[^']+'`)
)

var dockerReplacements = []struct{ old, new string }{
	{"Error response from daemon:", ""},
	{"repository does not exist or may require 'docker login'", "image not available"},
	{"denied: requested access to the resource is denied", "access denied"},
	{"manifest for", "image"},
}

// SanitizeError removes host paths, docker daemon noise and user/host names.
// Runner crash text goes through it before being sent to the remote model.
func SanitizeError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s", SanitizeText(err.Error()))
}

// SanitizeText applies SanitizeError's rules to plain text
func SanitizeText(msg string) string {
	msg = unixPathPattern.ReplaceAllStringFunc(msg, func(m string) string {
		i := strings.IndexByte(m, '/')
		return m[:i] + "[path]"
	})
	msg = winPathPattern.ReplaceAllString(msg, "[path]")

	for _, r := range dockerReplacements {
		msg = strings.ReplaceAll(msg, r.old, r.new)
	}

	msg = userPattern.ReplaceAllString(msg, "$1 [redacted]")
	return strings.TrimSpace(msg)
}
