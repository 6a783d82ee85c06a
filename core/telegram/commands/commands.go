// Package commands describes slash commands registered with the bot.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Public commands skip the channel membership gate (onboarding, help).
	Public  bool
	Hidden  bool
	Aliases []string
}
