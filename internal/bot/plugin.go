// Package bot contains the sync loop, the command router and the plugin
// contract. Plugins implement the individual commands; the bot feeds them
// recognized text events and sends whatever they answer back into the
// room.
package bot

import (
	"context"
	"time"

	"github.com/striezel/botvinnik-sub001/internal/matrix"
)

// Plugin is one command provider. A plugin may serve several command
// names; the router calls Handle with the matched name.
type Plugin interface {
	// Commands returns the command names this plugin serves, without the
	// command prefix.
	Commands() []string

	// Handle processes one command invocation. message is the text of
	// the triggering event with the command prefix stripped, so it
	// begins with the command token. Returning an empty message means
	// "no reply".
	Handle(ctx context.Context, command, message, userID, roomID string, serverTS time.Time) matrix.Message

	// HelpText returns a one-line description of the given command.
	HelpText(command string) string

	// AllowDeactivation reports whether the command may be switched off
	// through configuration. Administrative commands return false and run
	// regardless of the deactivation list.
	AllowDeactivation(command string) bool
}

// CommandHelp pairs a command name with its one-line description,
// for help listings.
type CommandHelp struct {
	Command string
	Help    string
}
