package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Descriptions holds per-language menu texts keyed by ISO 639-1 code.
	Descriptions map[string]string
	Hidden       bool
	Aliases      []string
}

// DescriptionFor returns the localized description for code, falling back to
// Description.
func (c Command) DescriptionFor(code string) string {
	if d, ok := c.Descriptions[code]; ok && d != "" {
		return d
	}
	return c.Description
}
