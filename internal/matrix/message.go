package matrix

// Message is an outgoing room message. Body is the plain-text rendering;
// FormattedBody optionally carries an HTML rendering sent with the
// org.matrix.custom.html format. An empty Body means "send nothing".
type Message struct {
	Body          string
	FormattedBody string
}

// IsEmpty reports whether the message should be suppressed entirely.
func (m Message) IsEmpty() bool {
	return m.Body == ""
}

// NoReply is the explicit "do not answer" sentinel for command handlers.
func NoReply() Message {
	return Message{}
}
