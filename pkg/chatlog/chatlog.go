// Package chatlog renders room traffic to the console. It is purely
// cosmetic: the bot works the same with a nil *ChatLog.
package chatlog

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var senderPalette = []lipgloss.Color{
	lipgloss.Color("63"),  // blue
	lipgloss.Color("212"), // pink
	lipgloss.Color("86"),  // green
	lipgloss.Color("214"), // orange
	lipgloss.Color("99"),  // purple
	lipgloss.Color("51"),  // cyan
}

var (
	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	roomStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Bold(true)
)

// ChatLog writes styled room traffic to a console writer.
type ChatLog struct {
	mu           sync.Mutex
	out          io.Writer
	senderColors map[string]lipgloss.Style
	colorIndex   int
}

// New creates a chat log writing to out.
func New(out io.Writer) *ChatLog {
	return &ChatLog{
		out:          out,
		senderColors: make(map[string]lipgloss.Style),
	}
}

// Message renders an inbound room message.
func (c *ChatLog) Message(roomID, sender, body string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s %s %s %s\n",
		timestampStyle.Render(time.Now().Format("15:04:05")),
		roomStyle.Render(shortRoom(roomID)),
		c.styleFor(sender).Render(sender+":"),
		firstLine(body))
}

// Reply renders an outbound bot reply.
func (c *ChatLog) Reply(roomID, command, body string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s %s %s %s\n",
		timestampStyle.Render(time.Now().Format("15:04:05")),
		roomStyle.Render(shortRoom(roomID)),
		replyStyle.Render("-> "+command),
		firstLine(body))
}

// RoomName renders a room name change.
func (c *ChatLog) RoomName(roomID, sender, name string) {
	c.state(roomID, fmt.Sprintf("%s set the room name to %q", sender, name))
}

// RoomTopic renders a room topic change.
func (c *ChatLog) RoomTopic(roomID, sender, topic string) {
	c.state(roomID, fmt.Sprintf("%s set the topic to %q", sender, topic))
}

func (c *ChatLog) state(roomID, line string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s %s %s\n",
		timestampStyle.Render(time.Now().Format("15:04:05")),
		roomStyle.Render(shortRoom(roomID)),
		stateStyle.Render(line))
}

func (c *ChatLog) styleFor(sender string) lipgloss.Style {
	if style, ok := c.senderColors[sender]; ok {
		return style
	}
	style := lipgloss.NewStyle().
		Foreground(senderPalette[c.colorIndex%len(senderPalette)]).
		Bold(true)
	c.senderColors[sender] = style
	c.colorIndex++
	return style
}

// shortRoom trims the room id to its localpart for display.
func shortRoom(roomID string) string {
	if idx := strings.Index(roomID, ":"); idx != -1 {
		return roomID[:idx]
	}
	return roomID
}

func firstLine(body string) string {
	if idx := strings.IndexByte(body, '\n'); idx != -1 {
		return body[:idx] + " ..."
	}
	return body
}
