package util

import "golang.org/x/text/unicode/norm"

// Normalize applies NFKD so visually identical usernames resolve to the
// same stored account regardless of how the client composed them.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
