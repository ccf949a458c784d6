package prompt

import (
	"strings"
	"time"
)

// DefaultBaseInstruction is the persona every backend starts from. A user
// supplied system instruction is layered on top of it, never in place of it.
const DefaultBaseInstruction = `You are a helpful, friendly AI assistant.
- Each message starts with the current date and time; use it when the user asks about dates, times or anything time-sensitive.
- Format answers for easy reading on a mobile screen: short paragraphs, simple lists, no wide tables.
- You cannot browse the web. When asked for current information, say that a web search would be needed and answer from what you know, noting it may be out of date.`

// timeLayout renders the timestamp the way a person would read it.
const timeLayout = "Monday, January 2, 2006 at 3:04:05 PM MST"

// Composed is the provider-agnostic prompt for one completion.
type Composed struct {
	// User is the timestamp line, a blank line, then the user's text.
	User string
	// System is the user-supplied instruction; empty when absent or disabled.
	System string
}

// Build composes the prompt for userText. now is passed in rather than read so
// identical inputs always produce identical output.
func Build(userText, systemInstruction string, now time.Time) Composed {
	return Composed{
		User:   "Current date and time: " + now.Format(timeLayout) + "\n\n" + userText,
		System: strings.TrimSpace(systemInstruction),
	}
}

// HasSystem reports whether a user instruction is carried.
func (c Composed) HasSystem() bool {
	return c.System != ""
}

// SystemField is the strategy for providers with a dedicated system channel:
// base and user instruction go to the system field, User goes unchanged to the
// user turn.
func (c Composed) SystemField(base string) (system, user string) {
	system = strings.TrimSpace(base)
	if c.HasSystem() {
		if system != "" {
			system += "\n\n"
		}
		system += c.System
	}
	return system, c.User
}

// Flat is the strategy for providers that only take a single prompt string.
func (c Composed) Flat(base string) string {
	var parts []string
	if b := strings.TrimSpace(base); b != "" {
		parts = append(parts, b)
	}
	if c.HasSystem() {
		parts = append(parts, "Additional instructions:\n"+c.System)
	}
	parts = append(parts, c.User)
	return strings.Join(parts, "\n\n")
}
