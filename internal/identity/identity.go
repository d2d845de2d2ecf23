// Package identity generates the short, printable worker identities
// exchanged in the HELO/EHLO handshake and stamped on every subsequent
// message a worker sends.
package identity

import (
	"lukechampine.com/frand"
)

// alphabet is a base32-style printable set, chosen so every identity
// is safe to log and to use as a map key or filename component
// without escaping.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// Length is the fixed width of a generated identity, matching
// WORKER_ID_LETTER_COUNT.
const Length = 5

// New returns a random Length-symbol identity drawn from alphabet using
// a fast, non-deterministic source. Collisions across a live cluster
// are possible but vanishingly unlikely at this width for the worker
// counts this system targets; the dispatch engine does not rely on
// global uniqueness beyond disambiguating live connections.
func New() string {
	b := make([]byte, Length)
	for i := range b {
		b[i] = alphabet[frand.Intn(len(alphabet))]
	}
	return string(b)
}

// Valid reports whether s has the shape of a generated identity:
// exactly Length symbols, all drawn from alphabet.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isAlphabetByte(s[i]) {
			return false
		}
	}
	return true
}

func isAlphabetByte(b byte) bool {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == b {
			return true
		}
	}
	return false
}
