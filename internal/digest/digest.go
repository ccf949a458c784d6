package digest

import (
	"crypto/sha256"
	"fmt"

	"PersonaChat/internal/prompt"
)

// Key hashes parts in order; parts are length-prefixed so ("ab","c") and ("a","bc") differ.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write([]byte(p))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Prompt fingerprints a composed prompt so logs and the ledger can correlate
// requests without storing what the user wrote.
func Prompt(c prompt.Composed) string {
	return Short(Key(c.System, c.User))
}

// Short truncates a digest to 16 hex characters.
func Short(d string) string {
	if len(d) > 16 {
		return d[:16]
	}
	return d
}
