package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode failures fall into three kinds. All of them abort the parse that
// raised them; none produce partial output.
var (
	// ErrSyntax means the payload is not well-formed JSON.
	ErrSyntax = errors.New("payload is not well-formed JSON")

	// ErrSchema means a required field is missing or has the wrong type.
	ErrSchema = errors.New("payload violates the expected schema")

	// ErrProtocolContract means the payload is well-formed but breaks a
	// protocol guarantee, such as an empty next_batch token.
	ErrProtocolContract = errors.New("payload violates the protocol contract")
)

func syntaxErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

func schemaErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...))
}

// classifyDecodeError maps an encoding/json error onto the taxonomy:
// malformed input is a syntax error, a type mismatch is a schema error.
func classifyDecodeError(err error, path string) error {
	var synErr *json.SyntaxError
	if errors.As(err, &synErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: at %s: %v", ErrSyntax, path, err)
	}
	return fmt.Errorf("%w: at %s: %v", ErrSchema, path, err)
}
