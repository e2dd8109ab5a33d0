package transform

import "regexp"

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	unsafeRE     = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)
)

const maxBaseLen = 50

// SanitizeBase makes a user-supplied base name safe for the processed
// directory: whitespace runs become "_", every character outside
// [A-Za-z0-9_-] is stripped, and the result is capped at 50 characters.
// The timestamp prefix and extension are appended by the caller.
func SanitizeBase(name string) string {
	s := whitespaceRE.ReplaceAllString(name, "_")
	s = unsafeRE.ReplaceAllString(s, "")
	if len(s) > maxBaseLen {
		s = s[:maxBaseLen]
	}
	return s
}
