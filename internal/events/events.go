// Package events holds the typed event model for room traffic and the
// strict decoders that turn raw homeserver payloads into it. Decoding is
// all-or-nothing: a malformed payload yields an error and no partial
// output, so callers can safely retry with the state they already had.
package events

// RoomMessageText is an "m.room.message" event with msgtype "m.text".
// Format and FormattedBody are empty when the event carried no HTML
// rendering.
type RoomMessageText struct {
	Body          string
	Format        string
	FormattedBody string
	Sender        string
	ServerTS      int64 // origin_server_ts, milliseconds since epoch
}

// RoomName is an "m.room.name" state event.
type RoomName struct {
	Name     string
	Sender   string
	ServerTS int64
}

// RoomTopic is an "m.room.topic" state event.
type RoomTopic struct {
	Topic    string
	Sender   string
	ServerTS int64
}

// Room aggregates the recognized events of one joined room from a single
// sync response. Sequences preserve the order the events appeared in the
// timeline. A fresh Room is produced per sync; merging repeated rooms into
// a longer-lived registry is the caller's concern.
type Room struct {
	ID     string
	Texts  []RoomMessageText
	Names  []RoomName
	Topics []RoomTopic
}

// PowerLevels is a snapshot of a room's "m.room.power_levels" content,
// reduced to the fields the bot needs for authorization checks.
type PowerLevels struct {
	Ban          int
	Kick         int
	UsersDefault int
	Users        map[string]int
}

// Defaults mandated by the client-server spec for absent fields.
const (
	defaultBanLevel  = 50
	defaultKickLevel = 50
)

// NewPowerLevels returns a snapshot populated with the protocol defaults.
func NewPowerLevels() PowerLevels {
	return PowerLevels{
		Ban:   defaultBanLevel,
		Kick:  defaultKickLevel,
		Users: make(map[string]int),
	}
}

// CanBanOrKick reports whether the user's effective level reaches the
// ban or the kick threshold. Either permission suffices. Unlisted users
// fall back to the users_default level. No validation is performed on
// the id itself.
func (pl PowerLevels) CanBanOrKick(userID string) bool {
	level, ok := pl.Users[userID]
	if !ok {
		level = pl.UsersDefault
	}
	return level >= pl.Ban || level >= pl.Kick
}
