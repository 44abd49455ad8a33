package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/striezel/botvinnik-sub001/internal/matrix"
	"github.com/striezel/botvinnik-sub001/pkg/log"
)

// Router maps command names to plugins and applies the deactivation
// policy. Routing itself is stateless; the mutex only guards the
// registry against hot reloads of the deactivation list.
type Router struct {
	mu          sync.RWMutex
	handlers    map[string]Plugin
	deactivated map[string]struct{}
}

func NewRouter() *Router {
	return &Router{
		handlers:    make(map[string]Plugin),
		deactivated: make(map[string]struct{}),
	}
}

// Register adds every command of the plugin to the registry. Registering
// a command name twice is a programming error and fails loudly.
func (r *Router) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, command := range p.Commands() {
		if command == "" {
			return fmt.Errorf("plugin registered an empty command name")
		}
		if _, exists := r.handlers[command]; exists {
			return fmt.Errorf("command %q is already registered", command)
		}
		r.handlers[command] = p
	}
	return nil
}

// Handle routes one command invocation. The boolean result reports
// whether any plugin handled the command; an unknown or deactivated
// command yields silence, not an error.
func (r *Router) Handle(ctx context.Context, command, message, userID, roomID string, serverTS time.Time) (matrix.Message, bool) {
	r.mu.RLock()
	p, ok := r.handlers[command]
	_, off := r.deactivated[command]
	r.mu.RUnlock()

	if !ok {
		return matrix.NoReply(), false
	}
	// The plugin has the last word on deactivation: administrative
	// commands run no matter what the configuration says.
	if off && p.AllowDeactivation(command) {
		log.WithField("command", command).Debug("ignoring deactivated command")
		return matrix.NoReply(), false
	}

	return p.Handle(ctx, command, message, userID, roomID, serverTS), true
}

// SetDeactivated replaces the deactivation list. Safe to call while the
// bot is running; used for config hot reload.
func (r *Router) SetDeactivated(commands []string) {
	set := make(map[string]struct{}, len(commands))
	for _, c := range commands {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}

	r.mu.Lock()
	r.deactivated = set
	r.mu.Unlock()
}

// IsDeactivated reports whether a command is currently switched off by
// configuration. It does not consult AllowDeactivation.
func (r *Router) IsDeactivated(command string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, off := r.deactivated[command]
	return off
}

// Commands returns all registered command names, sorted.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandHelp lists every active command with its help text, sorted by
// command name. Deactivated commands are omitted unless their plugin
// refuses deactivation.
func (r *Router) CommandHelp() []CommandHelp {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []CommandHelp
	for name, p := range r.handlers {
		if _, off := r.deactivated[name]; off && p.AllowDeactivation(name) {
			continue
		}
		entries = append(entries, CommandHelp{Command: name, Help: p.HelpText(name)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Command < entries[j].Command })
	return entries
}
