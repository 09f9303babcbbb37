package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, HashString("aven"), HashString("aven"))
	assert.NotEqual(t, HashString("aven"), HashString("avend"))
	assert.Len(t, HashString("anything"), 32)
}

func TestFingerprint(t *testing.T) {
	prefix := make([]byte, 100)
	for i := range prefix {
		prefix[i] = 'a'
	}

	a := string(prefix) + " tail one"
	b := string(prefix) + " a completely different tail"

	assert.Equal(t, Fingerprint(a, 100), Fingerprint(b, 100))
	assert.NotEqual(t, Fingerprint(a, 120), Fingerprint(b, 120))
	assert.Equal(t, HashString("short"), Fingerprint("short", 100))
}
