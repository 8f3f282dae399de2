package util

import "regexp"

var loginNoise = regexp.MustCompile(`[\s\-/\\.]`)

// SanitizeLogin strips whitespace, dashes, slashes and dots from a login
// taken from a URL path.
func SanitizeLogin(login string) string {
	return loginNoise.ReplaceAllString(login, "")
}
