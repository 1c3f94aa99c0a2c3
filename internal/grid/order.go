package grid

import (
	"fmt"
	"strings"
)

// Sheet tab order uses fractional indexing: each sheet carries a string
// key and tabs sort lexicographically. Inserting between two sheets
// derives a key strictly between their keys without renumbering anyone,
// which keeps reorders single-sheet operations under replication.

const orderAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// FirstOrderKey returns the key assigned to the first sheet of a grid.
func FirstOrderKey() string {
	// Mid-alphabet leaves headroom on both sides.
	return string(orderAlphabet[len(orderAlphabet)/2])
}

// OrderKeyBetween returns a key strictly between a and b. An empty a
// means "before everything", an empty b means "after everything".
func OrderKeyBetween(a, b string) (string, error) {
	if a != "" && b != "" && a >= b {
		return "", fmt.Errorf("order keys out of order: %q >= %q", a, b)
	}
	var out []byte
	bounded := b != ""
	for i := 0; ; i++ {
		ca := 0
		if i < len(a) {
			ca = strings.IndexByte(orderAlphabet, a[i])
			if ca < 0 {
				return "", fmt.Errorf("order key %q has invalid digit %q", a, a[i])
			}
		}
		cb := len(orderAlphabet)
		if bounded && i < len(b) {
			cb = strings.IndexByte(orderAlphabet, b[i])
			if cb < 0 {
				return "", fmt.Errorf("order key %q has invalid digit %q", b, b[i])
			}
		}
		if cb-ca > 1 {
			out = append(out, orderAlphabet[(ca+cb)/2])
			return string(out), nil
		}
		// Digits equal or adjacent: copy the lower digit and keep going.
		out = append(out, orderAlphabet[ca])
		if cb == ca+1 {
			// The written prefix is now strictly below b.
			bounded = false
		}
	}
}
