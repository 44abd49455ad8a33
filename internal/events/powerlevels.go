package events

import (
	"encoding/json"
	"errors"
)

// ParsePowerLevels decodes the content of an "m.room.power_levels" event.
// Absent fields keep their spec defaults; a present field of the wrong
// type fails the whole parse. Every value under "users" must be an
// integer level, otherwise the parse fails rather than skipping the
// offending entry.
func ParsePowerLevels(payload []byte) (PowerLevels, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return PowerLevels{}, schemaErrorf("power_levels content is not an object")
		}
		return PowerLevels{}, syntaxErrorf("power_levels content: %v", err)
	}

	pl := NewPowerLevels()

	if err := intField(fields, "ban", &pl.Ban); err != nil {
		return PowerLevels{}, err
	}
	if err := intField(fields, "kick", &pl.Kick); err != nil {
		return PowerLevels{}, err
	}
	if err := intField(fields, "users_default", &pl.UsersDefault); err != nil {
		return PowerLevels{}, err
	}

	if raw, ok := fields["users"]; ok {
		if isNull(raw) {
			return PowerLevels{}, schemaErrorf("users must map user ids to integer levels")
		}
		if err := json.Unmarshal(raw, &pl.Users); err != nil {
			return PowerLevels{}, schemaErrorf("users must map user ids to integer levels")
		}
	}

	return pl, nil
}

// intField overwrites *dst with the named field when present. A present
// field that is not a JSON integer (floats and strings included) is a
// schema error; absence keeps the default already in *dst.
func intField(fields map[string]json.RawMessage, name string, dst *int) error {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	if isNull(raw) {
		return schemaErrorf("%s must be an integer", name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return schemaErrorf("%s must be an integer", name)
	}
	return nil
}

// isNull reports whether raw is the JSON null literal. Unmarshal treats
// null as a no-op for most destination types, which would make a present
// null indistinguishable from an absent field.
func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
