package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHasFixedWidth(t *testing.T) {
	id := New()
	assert.Len(t, id, Length)
}

func TestNewIsValid(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.True(t, Valid(New()))
	}
}

func TestValidRejectsWrongLength(t *testing.T) {
	assert.False(t, Valid("ABCD"))
	assert.False(t, Valid("ABCDEF"))
	assert.False(t, Valid(""))
}

func TestValidRejectsNonAlphabetBytes(t *testing.T) {
	assert.False(t, Valid("abcde"))
	assert.False(t, Valid("AB01C"))
}

func TestNewVariesAcrossCalls(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		seen[New()] = true
	}
	assert.Greater(t, len(seen), 1)
}
