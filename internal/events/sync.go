package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Recognized timeline event types. Everything else is skipped without
// affecting the parse, so the bot stays compatible with servers that
// emit event types it has never heard of.
const (
	typeRoomMessage = "m.room.message"
	typeRoomName    = "m.room.name"
	typeRoomTopic   = "m.room.topic"

	msgTypeText = "m.text"
)

// ParseSync decodes one /sync response. On success it returns the joined
// rooms with their recognized events, the ids of rooms the bot was invited
// to, and overwrites *nextBatch with the server's continuation token. Both
// room and invite order follow the order of keys in the payload.
//
// Any failure leaves *nextBatch untouched and returns no partial output:
// a single malformed room aborts the whole parse. Callers retry the sync
// with the token they already hold; a half-applied response with a
// corrupted continuation token would desynchronize the client for good.
func ParseSync(payload []byte, nextBatch *string) ([]Room, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))

	if err := expectObjectStart(dec, "sync response"); err != nil {
		return nil, nil, err
	}

	var (
		batch    string
		gotBatch bool
		rooms    []Room
		invited  []string
	)

	for dec.More() {
		key, err := readKey(dec, "sync response")
		if err != nil {
			return nil, nil, err
		}

		switch key {
		case "next_batch":
			if err := dec.Decode(&batch); err != nil {
				return nil, nil, classifyDecodeError(err, "next_batch")
			}
			gotBatch = true
		case "rooms":
			rooms, invited, err = parseRooms(dec)
			if err != nil {
				return nil, nil, err
			}
		default:
			if err := skipValue(dec, key); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := finishObject(dec, "sync response"); err != nil {
		return nil, nil, err
	}

	if !gotBatch {
		return nil, nil, schemaErrorf("next_batch is required")
	}
	if batch == "" {
		return nil, nil, fmt.Errorf("%w: next_batch must not be empty", ErrProtocolContract)
	}

	*nextBatch = batch
	return rooms, invited, nil
}

func parseRooms(dec *json.Decoder) ([]Room, []string, error) {
	if err := expectObjectStart(dec, "rooms"); err != nil {
		return nil, nil, err
	}

	var (
		rooms   []Room
		invited []string
	)
	for dec.More() {
		key, err := readKey(dec, "rooms")
		if err != nil {
			return nil, nil, err
		}

		switch key {
		case "join":
			rooms, err = parseJoinedRooms(dec)
		case "invite":
			invited, err = parseInvitedRooms(dec)
		default:
			err = skipValue(dec, "rooms."+key)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	if err := finishObject(dec, "rooms"); err != nil {
		return nil, nil, err
	}

	return rooms, invited, nil
}

func parseJoinedRooms(dec *json.Decoder) ([]Room, error) {
	if err := expectObjectStart(dec, "rooms.join"); err != nil {
		return nil, err
	}

	var rooms []Room
	for dec.More() {
		roomID, err := readKey(dec, "rooms.join")
		if err != nil {
			return nil, err
		}

		room, err := parseJoinedRoom(dec, roomID)
		if err != nil {
			return nil, err
		}
		// A room with no recognized events still appears in the output:
		// it was present under "join".
		rooms = append(rooms, room)
	}
	if err := finishObject(dec, "rooms.join"); err != nil {
		return nil, err
	}

	return rooms, nil
}

func parseJoinedRoom(dec *json.Decoder, roomID string) (Room, error) {
	path := fmt.Sprintf("rooms.join[%s]", roomID)

	var wire struct {
		Timeline *struct {
			Events *[]json.RawMessage `json:"events"`
		} `json:"timeline"`
	}
	if err := dec.Decode(&wire); err != nil {
		return Room{}, classifyDecodeError(err, path)
	}
	if wire.Timeline == nil {
		return Room{}, schemaErrorf("%s: timeline is required", path)
	}
	if wire.Timeline.Events == nil {
		return Room{}, schemaErrorf("%s: timeline.events must be an array", path)
	}

	room := Room{ID: roomID}
	for i, raw := range *wire.Timeline.Events {
		if err := parseTimelineEvent(raw, fmt.Sprintf("%s.timeline.events[%d]", path, i), &room); err != nil {
			return Room{}, err
		}
	}
	return room, nil
}

// parseTimelineEvent appends the event to the room if it is one of the
// recognized types. The event type is probed first so that events the bot
// does not understand are skipped without inspecting the rest of their
// envelope.
func parseTimelineEvent(raw json.RawMessage, path string, room *Room) error {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return classifyDecodeError(err, path)
	}
	if head.Type == nil {
		return schemaErrorf("%s: type is required", path)
	}

	switch *head.Type {
	case typeRoomMessage:
		return parseMessageEvent(raw, path, room)
	case typeRoomName:
		return parseNameEvent(raw, path, room)
	case typeRoomTopic:
		return parseTopicEvent(raw, path, room)
	default:
		return nil
	}
}

func parseMessageEvent(raw json.RawMessage, path string, room *Room) error {
	var ev struct {
		Sender  *string         `json:"sender"`
		TS      *int64          `json:"origin_server_ts"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return classifyDecodeError(err, path)
	}

	// Probe msgtype before decoding anything else: message subtypes other
	// than m.text (images, files, notices, ...) are skipped, not errors.
	if len(ev.Content) == 0 || isNull(ev.Content) {
		return nil
	}
	var probe struct {
		MsgType *string `json:"msgtype"`
	}
	if err := json.Unmarshal(ev.Content, &probe); err != nil {
		return classifyDecodeError(err, path+".content")
	}
	if probe.MsgType == nil || *probe.MsgType != msgTypeText {
		return nil
	}

	var content struct {
		Body          *string `json:"body"`
		Format        *string `json:"format"`
		FormattedBody *string `json:"formatted_body"`
	}
	if err := json.Unmarshal(ev.Content, &content); err != nil {
		return classifyDecodeError(err, path+".content")
	}
	if content.Body == nil {
		return schemaErrorf("%s: content.body is required for text messages", path)
	}
	if ev.Sender == nil {
		return schemaErrorf("%s: sender is required", path)
	}
	if ev.TS == nil {
		return schemaErrorf("%s: origin_server_ts is required", path)
	}

	text := RoomMessageText{
		Body:     *content.Body,
		Sender:   *ev.Sender,
		ServerTS: *ev.TS,
	}
	if content.Format != nil {
		text.Format = *content.Format
	}
	if content.FormattedBody != nil {
		text.FormattedBody = *content.FormattedBody
	}
	room.Texts = append(room.Texts, text)
	return nil
}

func parseNameEvent(raw json.RawMessage, path string, room *Room) error {
	var ev struct {
		Sender  *string `json:"sender"`
		TS      *int64  `json:"origin_server_ts"`
		Content *struct {
			Name *string `json:"name"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return classifyDecodeError(err, path)
	}
	if ev.Content == nil || ev.Content.Name == nil {
		return schemaErrorf("%s: content.name is required", path)
	}
	if ev.Sender == nil {
		return schemaErrorf("%s: sender is required", path)
	}
	if ev.TS == nil {
		return schemaErrorf("%s: origin_server_ts is required", path)
	}

	room.Names = append(room.Names, RoomName{
		Name:     *ev.Content.Name,
		Sender:   *ev.Sender,
		ServerTS: *ev.TS,
	})
	return nil
}

func parseTopicEvent(raw json.RawMessage, path string, room *Room) error {
	var ev struct {
		Sender  *string `json:"sender"`
		TS      *int64  `json:"origin_server_ts"`
		Content *struct {
			Topic *string `json:"topic"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return classifyDecodeError(err, path)
	}
	if ev.Content == nil || ev.Content.Topic == nil {
		return schemaErrorf("%s: content.topic is required", path)
	}
	if ev.Sender == nil {
		return schemaErrorf("%s: sender is required", path)
	}
	if ev.TS == nil {
		return schemaErrorf("%s: origin_server_ts is required", path)
	}

	room.Topics = append(room.Topics, RoomTopic{
		Topic:    *ev.Content.Topic,
		Sender:   *ev.Sender,
		ServerTS: *ev.TS,
	})
	return nil
}

// parseInvitedRooms collects the room ids under "invite". The invite
// state payloads themselves carry nothing the bot needs, so the values
// are consumed without validation.
func parseInvitedRooms(dec *json.Decoder) ([]string, error) {
	if err := expectObjectStart(dec, "rooms.invite"); err != nil {
		return nil, err
	}

	var invited []string
	for dec.More() {
		roomID, err := readKey(dec, "rooms.invite")
		if err != nil {
			return nil, err
		}
		if err := skipValue(dec, "rooms.invite["+roomID+"]"); err != nil {
			return nil, err
		}
		invited = append(invited, roomID)
	}
	if err := finishObject(dec, "rooms.invite"); err != nil {
		return nil, err
	}

	return invited, nil
}

// Decoder helpers. The sync payload is walked token by token at the
// object level so that key encounter order survives the decode; values
// are handed back to the regular unmarshaller once their position is
// known.

func expectObjectStart(dec *json.Decoder, path string) error {
	tok, err := dec.Token()
	if err != nil {
		return classifyDecodeError(err, path)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return schemaErrorf("%s must be an object", path)
	}
	return nil
}

func finishObject(dec *json.Decoder, path string) error {
	if _, err := dec.Token(); err != nil {
		return classifyDecodeError(err, path)
	}
	return nil
}

func readKey(dec *json.Decoder, path string) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", classifyDecodeError(err, path)
	}
	key, ok := tok.(string)
	if !ok {
		return "", schemaErrorf("%s: expected object key", path)
	}
	return key, nil
}

func skipValue(dec *json.Decoder, path string) error {
	var discard json.RawMessage
	if err := dec.Decode(&discard); err != nil {
		return classifyDecodeError(err, path)
	}
	return nil
}
