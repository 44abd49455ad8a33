package plugins

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/striezel/botvinnik-sub001/internal/matrix"
)

var fortunes = []string{
	"He who asks is a fool for five minutes, but he who does not ask remains a fool forever.",
	"A journey of a thousand miles begins with a single step.",
	"The best time to plant a tree was twenty years ago. The second best time is now.",
	"Fall seven times, stand up eight.",
	"When the winds of change blow, some people build walls and others build windmills.",
	"A smooth sea never made a skilled sailor.",
	"The obstacle is the path.",
	"Better a diamond with a flaw than a pebble without.",
	"Patience is a bitter plant, but its fruit is sweet.",
	"Do not fear going forward slowly; fear only standing still.",
}

// Fortune replies with a random aphorism. The rng is guarded because
// handlers for different rooms may run in parallel.
type Fortune struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewFortune() *Fortune {
	return &Fortune{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (f *Fortune) Commands() []string {
	return []string{"fortune"}
}

func (f *Fortune) Handle(_ context.Context, _, _, _, _ string, _ time.Time) matrix.Message {
	f.mu.Lock()
	pick := f.rng.Intn(len(fortunes))
	f.mu.Unlock()
	return matrix.Message{Body: fortunes[pick]}
}

func (f *Fortune) HelpText(string) string {
	return "tells a random fortune"
}

func (f *Fortune) AllowDeactivation(string) bool {
	return true
}
