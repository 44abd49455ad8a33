package bot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/striezel/botvinnik-sub001/internal/events"
	"github.com/striezel/botvinnik-sub001/internal/matrix"
)

type sentMessage struct {
	roomID string
	body   string
}

// fakeTransport scripts the homeserver side of the sync loop.
type fakeTransport struct {
	mu     sync.Mutex
	userID string

	// syncFn is called with the zero-based call number and the since
	// token. When nil, Sync returns a minimal empty response.
	syncFn func(call int, since string) ([]byte, error)
	sinces []string

	sent   []sentMessage
	joined []string

	powerLevels events.PowerLevels
	powerErr    error
	powerCalls  int
}

func (f *fakeTransport) UserID() string { return f.userID }

func (f *fakeTransport) Sync(since string, timeout time.Duration, filter string) ([]byte, error) {
	f.mu.Lock()
	call := len(f.sinces)
	f.sinces = append(f.sinces, since)
	f.mu.Unlock()
	if f.syncFn == nil {
		return []byte(`{"next_batch": "s_0"}`), nil
	}
	return f.syncFn(call, since)
}

func (f *fakeTransport) SendMessage(roomID string, msg matrix.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{roomID: roomID, body: msg.Body})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) JoinRoom(room string) (string, error) {
	f.mu.Lock()
	f.joined = append(f.joined, room)
	f.mu.Unlock()
	return room, nil
}

func (f *fakeTransport) RoomPowerLevels(roomID string) (events.PowerLevels, error) {
	f.mu.Lock()
	f.powerCalls++
	f.mu.Unlock()
	if f.powerErr != nil {
		return events.PowerLevels{}, f.powerErr
	}
	return f.powerLevels, nil
}

func (f *fakeTransport) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	bodies := make([]string, len(f.sent))
	for i, s := range f.sent {
		bodies[i] = s.body
	}
	return bodies
}

// recorderPlugin captures every invocation it receives. Handlers run on
// worker goroutines, so access is serialized; read the records only
// after drainWorkers.
type recorderPlugin struct {
	names []string
	reply func(command, message string) matrix.Message

	mu       sync.Mutex
	commands []string
	messages []string
}

func (p *recorderPlugin) Commands() []string { return p.names }

func (p *recorderPlugin) Handle(ctx context.Context, command, message, userID, roomID string, serverTS time.Time) matrix.Message {
	p.mu.Lock()
	p.commands = append(p.commands, command)
	p.messages = append(p.messages, message)
	p.mu.Unlock()
	if p.reply == nil {
		return matrix.NoReply()
	}
	return p.reply(command, message)
}

func (p *recorderPlugin) HelpText(command string) string  { return command }
func (p *recorderPlugin) AllowDeactivation(_ string) bool { return true }

func newTestBot(t *testing.T, ft *fakeTransport, plugin Plugin, opts Options) *Bot {
	t.Helper()
	router := NewRouter()
	if plugin != nil {
		if err := router.Register(plugin); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return New(ft, router, opts)
}

func TestProcessRoomFiltersEchoAndBacklog(t *testing.T) {
	ft := &fakeTransport{userID: "@bot:example.org"}
	rec := &recorderPlugin{names: []string{"ping"}}
	b := newTestBot(t, ft, rec, Options{})
	b.startTS = 1_000

	b.processRoom(events.Room{
		ID: "!r:example.org",
		Texts: []events.RoomMessageText{
			{Body: "!ping", Sender: "@bot:example.org", ServerTS: 2_000},
			{Body: "!ping old", Sender: "@alice:example.org", ServerTS: 500},
			{Body: "just chatting", Sender: "@alice:example.org", ServerTS: 2_000},
			{Body: "!ping now", Sender: "@alice:example.org", ServerTS: 2_000},
		},
	})
	b.drainWorkers()

	if got := rec.commands; len(got) != 1 || got[0] != "ping" {
		t.Fatalf("expected exactly the fresh foreign command, got %v", got)
	}
	if rec.messages[0] != "ping now" {
		t.Errorf("message = %q, want %q", rec.messages[0], "ping now")
	}
}

func TestProcessRoomDetachedPrefix(t *testing.T) {
	ft := &fakeTransport{userID: "@bot:example.org"}
	rec := &recorderPlugin{
		names: []string{"rot13"},
		reply: func(_, message string) matrix.Message {
			return matrix.Message{Body: "got " + message}
		},
	}
	b := newTestBot(t, ft, rec, Options{Prefix: "bot:"})
	b.startTS = 1_000

	b.processRoom(events.Room{
		ID: "!r:example.org",
		Texts: []events.RoomMessageText{
			{Body: "bot: rot13 hello", Sender: "@alice:example.org", ServerTS: 2_000},
		},
	})
	b.drainWorkers()

	if len(rec.commands) != 1 || rec.commands[0] != "rot13" {
		t.Fatalf("commands = %v, want [rot13]", rec.commands)
	}
	// The prefix is stripped before the plugin sees the text, so the
	// command token is the first word even with a detached prefix.
	if rec.messages[0] != "rot13 hello" {
		t.Errorf("message = %q, want %q", rec.messages[0], "rot13 hello")
	}
	if got := ft.sentBodies(); len(got) != 1 || got[0] != "got rot13 hello" {
		t.Errorf("sent = %v, want the plugin reply", got)
	}
}

func TestDispatchKeepsRoomOrderAndDrains(t *testing.T) {
	ft := &fakeTransport{userID: "@bot:example.org"}
	rec := &recorderPlugin{
		names: []string{"count"},
		reply: func(_, message string) matrix.Message {
			return matrix.Message{Body: message}
		},
	}
	b := newTestBot(t, ft, rec, Options{})
	b.startTS = 1_000

	room := events.Room{ID: "!r:example.org"}
	var want []string
	for i := 0; i < 8; i++ {
		body := fmt.Sprintf("count %d", i)
		want = append(want, body)
		room.Texts = append(room.Texts, events.RoomMessageText{
			Body: "!" + body, Sender: "@alice:example.org", ServerTS: 2_000,
		})
	}
	b.processRoom(room)
	b.drainWorkers()

	if got := rec.messages; !reflect.DeepEqual(got, want) {
		t.Errorf("handled order = %v, want %v", got, want)
	}
	if got := ft.sentBodies(); !reflect.DeepEqual(got, want) {
		t.Errorf("reply order = %v, want %v", got, want)
	}
}

func TestAuthorizedToStop(t *testing.T) {
	levels := events.NewPowerLevels()
	levels.Users["@mod:example.org"] = 50

	ft := &fakeTransport{userID: "@bot:example.org", powerLevels: levels}
	b := newTestBot(t, ft, nil, Options{StopUsers: []string{"@admin:example.org"}})

	if !b.AuthorizedToStop("@admin:example.org", "!r:example.org") {
		t.Error("configured stop user was denied")
	}
	if ft.powerCalls != 0 {
		t.Errorf("allow-list hit should not consult power levels, got %d calls", ft.powerCalls)
	}

	if !b.AuthorizedToStop("@mod:example.org", "!r:example.org") {
		t.Error("user with ban rights was denied")
	}
	if b.AuthorizedToStop("@pleb:example.org", "!r:example.org") {
		t.Error("user without rights was allowed")
	}
	if ft.powerCalls != 1 {
		t.Errorf("power levels fetched %d times, want 1 (cached)", ft.powerCalls)
	}

	// Lookup failures deny rather than guess.
	ft2 := &fakeTransport{userID: "@bot:example.org", powerErr: errors.New("boom")}
	b2 := newTestBot(t, ft2, nil, Options{})
	if b2.AuthorizedToStop("@mod:example.org", "!r:example.org") {
		t.Error("failed power lookup must deny")
	}
}

func TestRunReplaysTokenAfterParseFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ft := &fakeTransport{userID: "@bot:example.org"}
	ft.syncFn = func(call int, since string) ([]byte, error) {
		switch call {
		case 0:
			return []byte(`{"next_batch": "s_1"}`), nil
		case 1:
			return []byte(`{"next_batch": "s_2"}`), nil
		case 2:
			return []byte(`{"next_batch":`), nil
		case 3:
			return []byte(`{"next_batch": "s_3"}`), nil
		default:
			cancel()
			return []byte(`{"next_batch": "s_4"}`), nil
		}
	}

	b := newTestBot(t, ft, nil, Options{})
	b.initialBackoff = time.Millisecond
	b.maxBackoff = 2 * time.Millisecond

	if err := b.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	// The malformed response at call 2 must not advance the token: call 3
	// replays "s_2" instead of skipping the window.
	want := []string{"", "s_1", "s_2", "s_2", "s_3"}
	if !reflect.DeepEqual(ft.sinces, want) {
		t.Errorf("since tokens = %v, want %v", ft.sinces, want)
	}
}

func TestRunStopsOnRejectedToken(t *testing.T) {
	ft := &fakeTransport{userID: "@bot:example.org"}
	ft.syncFn = func(call int, since string) ([]byte, error) {
		if call == 0 {
			return []byte(`{"next_batch": "s_1"}`), nil
		}
		return nil, fmt.Errorf("sync: %w", &matrix.ServerError{
			Code:       matrix.ErrCodeUnknownToken,
			Message:    "token expired",
			StatusCode: 401,
		})
	}

	b := newTestBot(t, ft, nil, Options{})
	b.initialBackoff = time.Millisecond
	b.maxBackoff = 2 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	select {
	case err := <-done:
		if !matrix.IsServerError(err, matrix.ErrCodeUnknownToken) {
			t.Fatalf("Run returned %v, want a %s error", err, matrix.ErrCodeUnknownToken)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run kept retrying a rejected access token")
	}

	if len(ft.sinces) != 2 {
		t.Errorf("sync called %d times, want 2 (no retry after rejection)", len(ft.sinces))
	}
}

func TestJoinInvites(t *testing.T) {
	ft := &fakeTransport{userID: "@bot:example.org"}
	b := newTestBot(t, ft, nil, Options{})

	b.joinInvites([]string{"!a:example.org", "#alias:example.org"})

	want := []string{"!a:example.org", "#alias:example.org"}
	if !reflect.DeepEqual(ft.joined, want) {
		t.Errorf("joined = %v, want %v", ft.joined, want)
	}
}
