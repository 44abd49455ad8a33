package plugins

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/striezel/botvinnik-sub001/internal/bot"
	"github.com/striezel/botvinnik-sub001/internal/matrix"
	"github.com/striezel/botvinnik-sub001/internal/version"
)

// Controller is the slice of the bot the core plugin needs: identity,
// shutdown, and stop authorization.
type Controller interface {
	UserID() string
	Prefix() string
	RequestStop()
	AuthorizedToStop(userID, roomID string) bool
}

// HelpSource lists the currently active commands.
type HelpSource interface {
	CommandHelp() []bot.CommandHelp
}

// Core provides the administrative commands. None of them can be
// deactivated through configuration.
type Core struct {
	ctrl Controller
	help HelpSource
}

func NewCore(ctrl Controller, help HelpSource) *Core {
	return &Core{ctrl: ctrl, help: help}
}

func (c *Core) Commands() []string {
	return []string{"help", "version", "whoami", "stop"}
}

func (c *Core) Handle(_ context.Context, command, _, userID, roomID string, _ time.Time) matrix.Message {
	switch command {
	case "help":
		return c.handleHelp()
	case "version":
		return matrix.Message{Body: version.FullVersion()}
	case "whoami":
		return matrix.Message{
			Body:          fmt.Sprintf("I am %s. You are %s.", c.ctrl.UserID(), userID),
			FormattedBody: fmt.Sprintf("I am <code>%s</code>. You are <code>%s</code>.", html.EscapeString(c.ctrl.UserID()), html.EscapeString(userID)),
		}
	case "stop":
		return c.handleStop(userID, roomID)
	default:
		return matrix.NoReply()
	}
}

func (c *Core) handleHelp() matrix.Message {
	entries := c.help.CommandHelp()
	prefix := c.ctrl.Prefix()

	var plain, formatted strings.Builder
	plain.WriteString("Available commands:\n")
	formatted.WriteString("<strong>Available commands:</strong><ul>")
	for _, entry := range entries {
		fmt.Fprintf(&plain, "%s%s - %s\n", prefix, entry.Command, entry.Help)
		fmt.Fprintf(&formatted, "<li><code>%s%s</code> - %s</li>",
			html.EscapeString(prefix), html.EscapeString(entry.Command), html.EscapeString(entry.Help))
	}
	formatted.WriteString("</ul>")

	return matrix.Message{
		Body:          strings.TrimRight(plain.String(), "\n"),
		FormattedBody: formatted.String(),
	}
}

func (c *Core) handleStop(userID, roomID string) matrix.Message {
	if !c.ctrl.AuthorizedToStop(userID, roomID) {
		// A refusal is an ordinary reply, not an error.
		return matrix.Message{
			Body: fmt.Sprintf("Sorry %s, you are not allowed to stop me.", userID),
		}
	}

	c.ctrl.RequestStop()
	return matrix.Message{Body: "Shutting down. Goodbye!"}
}

func (c *Core) HelpText(command string) string {
	switch command {
	case "help":
		return "lists all available commands"
	case "version":
		return "shows the bot's version"
	case "whoami":
		return "shows the bot's and your own user id"
	case "stop":
		return "shuts the bot down (authorized users only)"
	default:
		return ""
	}
}

// AllowDeactivation always returns false: the administrative commands
// keep working no matter what the configuration says.
func (c *Core) AllowDeactivation(string) bool {
	return false
}
