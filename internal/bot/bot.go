package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/striezel/botvinnik-sub001/internal/events"
	"github.com/striezel/botvinnik-sub001/internal/matrix"
	"github.com/striezel/botvinnik-sub001/pkg/chatlog"
	"github.com/striezel/botvinnik-sub001/pkg/log"
	"github.com/striezel/botvinnik-sub001/pkg/metrics"
)

const (
	defaultPrefix         = "!"
	defaultSyncTimeout    = 30 * time.Second
	defaultCommandTimeout = 30 * time.Second
	defaultQueueSize      = 32

	// powerLevelsTTL bounds how stale a cached power-level snapshot may
	// get before the next authorization check refreshes it.
	powerLevelsTTL = 5 * time.Minute

	defaultInitialBackoff = 2 * time.Second
	defaultMaxBackoff     = time.Minute
)

// Transport is the slice of the homeserver client the bot drives.
// *matrix.Client satisfies it; tests substitute their own.
type Transport interface {
	UserID() string
	Sync(since string, timeout time.Duration, filter string) ([]byte, error)
	SendMessage(roomID string, msg matrix.Message) error
	JoinRoom(room string) (string, error)
	RoomPowerLevels(roomID string) (events.PowerLevels, error)
}

// Options configures a Bot. Zero values fall back to defaults.
type Options struct {
	Prefix         string
	StopUsers      []string
	SyncTimeout    time.Duration
	CommandTimeout time.Duration
	QueueSize      int
	ChatLog        *chatlog.ChatLog
	Metrics        *metrics.Metrics
}

// Bot drives the sync loop: long-poll, parse, dispatch, repeat. One
// sync request is in flight at a time; command handlers run on per-room
// workers so a slow plugin cannot stall ingestion.
type Bot struct {
	client         Transport
	router         *Router
	prefix         string
	syncTimeout    time.Duration
	commandTimeout time.Duration
	queueSize      int
	chat           *chatlog.ChatLog
	metrics        *metrics.Metrics
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// startTS cuts off backlog: events older than bot startup are never
	// dispatched, even when the server replays them.
	startTS int64

	stopOnce sync.Once
	stopCh   chan struct{}

	// workers is only touched from the Run goroutine.
	workers  map[string]chan task
	workerWG sync.WaitGroup

	stopUsersMu sync.RWMutex
	stopUsers   map[string]struct{}

	powerMu sync.Mutex
	power   map[string]powerEntry
}

type task struct {
	command  string
	body     string
	userID   string
	roomID   string
	serverTS time.Time
}

type powerEntry struct {
	levels  events.PowerLevels
	fetched time.Time
}

// New creates a bot around a logged-in client and a populated router.
func New(client Transport, router *Router, opts Options) *Bot {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.SyncTimeout == 0 {
		opts.SyncTimeout = defaultSyncTimeout
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = defaultQueueSize
	}

	b := &Bot{
		client:         client,
		router:         router,
		prefix:         opts.Prefix,
		syncTimeout:    opts.SyncTimeout,
		commandTimeout: opts.CommandTimeout,
		queueSize:      opts.QueueSize,
		chat:           opts.ChatLog,
		metrics:        opts.Metrics,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		stopCh:         make(chan struct{}),
		workers:        make(map[string]chan task),
		power:          make(map[string]powerEntry),
	}
	b.SetStopUsers(opts.StopUsers)
	return b
}

// UserID returns the bot's own Matrix user id.
func (b *Bot) UserID() string {
	return b.client.UserID()
}

// Prefix returns the command prefix.
func (b *Bot) Prefix() string {
	return b.prefix
}

// RequestStop asks the sync loop to exit after its current cycle. The
// in-flight request is never interrupted, and queued replies are drained
// before Run returns.
func (b *Bot) RequestStop() {
	b.stopOnce.Do(func() {
		log.Info("stop requested")
		close(b.stopCh)
	})
}

// SetStopUsers replaces the allow-list for the stop command. Safe to
// call while the bot runs; used for config hot reload.
func (b *Bot) SetStopUsers(userIDs []string) {
	set := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			set[id] = struct{}{}
		}
	}

	b.stopUsersMu.Lock()
	b.stopUsers = set
	b.stopUsersMu.Unlock()
}

// AuthorizedToStop reports whether the user may shut the bot down:
// either the configuration lists them, or they hold ban or kick rights
// in the room they asked from.
func (b *Bot) AuthorizedToStop(userID, roomID string) bool {
	b.stopUsersMu.RLock()
	_, listed := b.stopUsers[userID]
	b.stopUsersMu.RUnlock()
	if listed {
		return true
	}

	levels, err := b.roomPowerLevels(roomID)
	if err != nil {
		log.WithError(err).WithField("room_id", roomID).Warn("power level lookup failed, denying")
		return false
	}
	return levels.CanBanOrKick(userID)
}

func (b *Bot) roomPowerLevels(roomID string) (events.PowerLevels, error) {
	b.powerMu.Lock()
	entry, ok := b.power[roomID]
	b.powerMu.Unlock()
	if ok && time.Since(entry.fetched) < powerLevelsTTL {
		return entry.levels, nil
	}

	levels, err := b.client.RoomPowerLevels(roomID)
	if err != nil {
		return events.PowerLevels{}, err
	}

	b.powerMu.Lock()
	b.power[roomID] = powerEntry{levels: levels, fetched: time.Now()}
	b.powerMu.Unlock()
	return levels, nil
}

// Run executes the sync loop until the context is canceled or a stop is
// requested. Transport errors back off and retry; parse errors retry
// with the unchanged continuation token.
func (b *Bot) Run(ctx context.Context) error {
	b.startTS = time.Now().UnixMilli()

	// Initial sync only establishes the continuation token. Backlog is
	// additionally guarded by the startTS cut-off, so a failure here
	// merely costs one full sync on the first loop iteration.
	token := ""
	if raw, err := b.client.Sync("", 0, ""); err != nil {
		log.WithError(err).Warn("initial sync failed")
	} else if _, _, err := events.ParseSync(raw, &token); err != nil {
		log.WithError(err).Warn("initial sync response was malformed")
	}

	backoff := b.initialBackoff
	for {
		select {
		case <-ctx.Done():
			b.drainWorkers()
			return ctx.Err()
		case <-b.stopCh:
			b.drainWorkers()
			return nil
		default:
		}

		if b.metrics != nil {
			b.metrics.SyncRequests.Inc()
		}

		raw, err := b.client.Sync(token, b.syncTimeout, "")
		if err != nil {
			if b.metrics != nil {
				b.metrics.SyncFailures.WithLabelValues(metrics.ReasonTransport).Inc()
			}
			// A rejected token never recovers by retrying; the operator
			// has to supply fresh credentials.
			if matrix.IsServerError(err, matrix.ErrCodeUnknownToken) {
				log.WithError(err).Error("access token rejected by the homeserver")
				b.drainWorkers()
				return err
			}
			log.WithError(err).WithField("backoff", backoff.String()).Warn("sync request failed")
			if !b.sleep(ctx, backoff) {
				continue
			}
			if backoff *= 2; backoff > b.maxBackoff {
				backoff = b.maxBackoff
			}
			continue
		}

		rooms, invited, err := events.ParseSync(raw, &token)
		if err != nil {
			// The token was not overwritten: the next request replays
			// the same window instead of silently skipping it.
			if b.metrics != nil {
				b.metrics.SyncFailures.WithLabelValues(metrics.ReasonParse).Inc()
			}
			log.WithError(err).Warn("discarding malformed sync response")
			b.sleep(ctx, b.initialBackoff)
			continue
		}
		backoff = b.initialBackoff

		b.joinInvites(invited)
		for _, room := range rooms {
			b.processRoom(room)
		}
	}
}

// sleep waits for d unless the context ends or a stop is requested
// first. Returns true when the full duration elapsed.
func (b *Bot) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-b.stopCh:
		return false
	}
}

func (b *Bot) joinInvites(roomIDs []string) {
	for _, roomID := range roomIDs {
		resolved, err := b.client.JoinRoom(roomID)
		if err != nil {
			// The invite reappears in later syncs until accepted, so a
			// failed join is retried naturally.
			log.WithError(err).WithField("room_id", roomID).Warn("failed to join invited room")
			continue
		}
		if b.metrics != nil {
			b.metrics.RoomsJoined.Inc()
		}
		log.WithField("room_id", resolved).Info("joined room from invite")
	}
}

func (b *Bot) processRoom(room events.Room) {
	for _, name := range room.Names {
		b.chat.RoomName(room.ID, name.Sender, name.Name)
	}
	for _, topic := range room.Topics {
		b.chat.RoomTopic(room.ID, topic.Sender, topic.Topic)
	}

	for _, text := range room.Texts {
		if text.Sender == b.client.UserID() {
			continue
		}
		if text.ServerTS < b.startTS {
			continue
		}

		b.chat.Message(room.ID, text.Sender, text.Body)

		command, invocation, ok := splitCommand(text.Body, b.prefix)
		if !ok {
			continue
		}
		b.dispatch(task{
			command:  command,
			body:     invocation,
			userID:   text.Sender,
			roomID:   room.ID,
			serverTS: time.UnixMilli(text.ServerTS),
		})
	}
}

// splitCommand extracts the command from a message body. The command is
// the first whitespace-delimited word after the prefix, lowercased. The
// invocation is the body with the prefix and surrounding whitespace
// stripped, so plugins see the same text regardless of whether the
// prefix is glued to the command ("!rot13 x") or detached ("bot: rot13 x").
func splitCommand(body, prefix string) (command, invocation string, ok bool) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, prefix) {
		return "", "", false
	}
	invocation = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
	fields := strings.Fields(invocation)
	if len(fields) == 0 {
		return "", "", false
	}
	return strings.ToLower(fields[0]), invocation, true
}
