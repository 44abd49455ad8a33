package plugins

import (
	"context"
	"strings"
	"time"

	"github.com/striezel/botvinnik-sub001/internal/matrix"
)

// Rot13 applies the classic Caesar rotation to the rest of the message.
type Rot13 struct{}

func NewRot13() *Rot13 {
	return &Rot13{}
}

func (r *Rot13) Commands() []string {
	return []string{"rot13"}
}

func (r *Rot13) Handle(_ context.Context, _, message, _, _ string, _ time.Time) matrix.Message {
	text := args(message)
	if text == "" {
		return matrix.Message{Body: "Usage: rot13 <text>"}
	}
	return matrix.Message{Body: rotate(text)}
}

func rotate(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z':
			r = 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			r = 'A' + (r-'A'+13)%26
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (r *Rot13) HelpText(string) string {
	return "applies ROT13 to the given text"
}

func (r *Rot13) AllowDeactivation(string) bool {
	return true
}
