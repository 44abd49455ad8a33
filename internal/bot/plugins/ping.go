package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/striezel/botvinnik-sub001/internal/matrix"
)

// Ping answers with the time the triggering message took to reach the
// bot, based on the event's origin server timestamp.
type Ping struct{}

func NewPing() *Ping {
	return &Ping{}
}

func (p *Ping) Commands() []string {
	return []string{"ping"}
}

func (p *Ping) Handle(_ context.Context, _, _, _, _ string, serverTS time.Time) matrix.Message {
	age := time.Since(serverTS).Round(time.Millisecond)
	if age < 0 {
		// Clock skew between homeserver and bot host.
		age = 0
	}
	return matrix.Message{
		Body:          fmt.Sprintf("Pong! Your message took %s to arrive.", age),
		FormattedBody: fmt.Sprintf("Pong! Your message took <em>%s</em> to arrive.", age),
	}
}

func (p *Ping) HelpText(string) string {
	return "answers with pong and the message's travel time"
}

func (p *Ping) AllowDeactivation(string) bool {
	return true
}
