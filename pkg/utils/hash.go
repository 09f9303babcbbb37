package utils

import (
	"crypto/md5"
	"fmt"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// Fingerprint hashes the leading n characters of text, used to spot
// near-duplicate content without comparing whole documents.
func Fingerprint(text string, n int) string {
	if len(text) > n {
		text = text[:n]
	}
	return HashString(text)
}
