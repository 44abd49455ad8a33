package events

import (
	"errors"
	"testing"
)

func TestParsePowerLevelsDefaults(t *testing.T) {
	pl, err := ParsePowerLevels([]byte(`{}`))
	if err != nil {
		t.Fatalf("ParsePowerLevels failed: %v", err)
	}

	if pl.Ban != 50 {
		t.Errorf("expected default ban 50, got %d", pl.Ban)
	}
	if pl.Kick != 50 {
		t.Errorf("expected default kick 50, got %d", pl.Kick)
	}
	if pl.UsersDefault != 0 {
		t.Errorf("expected default users_default 0, got %d", pl.UsersDefault)
	}
	if len(pl.Users) != 0 {
		t.Errorf("expected empty users map, got %v", pl.Users)
	}
}

func TestParsePowerLevelsPartial(t *testing.T) {
	pl, err := ParsePowerLevels([]byte(`{"kick": 75, "users": {"@alice:example.com": 100}}`))
	if err != nil {
		t.Fatalf("ParsePowerLevels failed: %v", err)
	}

	if pl.Ban != 50 {
		t.Errorf("omitted ban should keep default 50, got %d", pl.Ban)
	}
	if pl.Kick != 75 {
		t.Errorf("expected kick 75, got %d", pl.Kick)
	}
	if got := pl.Users["@alice:example.com"]; got != 100 {
		t.Errorf("expected level 100 for @alice, got %d", got)
	}
}

func TestParsePowerLevelsFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{name: "not json", payload: `{"ban": `, wantErr: ErrSyntax},
		{name: "not an object", payload: `[1, 2]`, wantErr: ErrSchema},
		{name: "ban is a float", payload: `{"ban": 42.5}`, wantErr: ErrSchema},
		{name: "ban is a string", payload: `{"ban": "x"}`, wantErr: ErrSchema},
		{name: "ban is null", payload: `{"ban": null}`, wantErr: ErrSchema},
		{name: "kick is a bool", payload: `{"kick": true}`, wantErr: ErrSchema},
		{name: "users_default is a string", payload: `{"users_default": "0"}`, wantErr: ErrSchema},
		{name: "users is an array", payload: `{"users": []}`, wantErr: ErrSchema},
		{name: "users is null", payload: `{"users": null}`, wantErr: ErrSchema},
		{name: "one user level is a string", payload: `{"users": {"@a:x": 50, "@b:x": "high"}}`, wantErr: ErrSchema},
		{name: "one user level is a float", payload: `{"users": {"@a:x": 49.9}}`, wantErr: ErrSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePowerLevels([]byte(tt.payload))
			if err == nil {
				t.Fatal("expected an error, got none")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCanBanOrKickDefaultReachesKick(t *testing.T) {
	pl := PowerLevels{Ban: 80, Kick: 50, UsersDefault: 50}

	// users_default 50 meets the kick threshold, so any unlisted user can
	// perform at least one of the two actions.
	if !pl.CanBanOrKick("@anyone:example.com") {
		t.Error("unlisted user at users_default 50 should reach kick 50")
	}
	if !pl.CanBanOrKick("") {
		t.Error("empty user id is still resolved through users_default")
	}
}

func TestCanBanOrKickExplicitOverride(t *testing.T) {
	pl := PowerLevels{
		Ban:          50,
		Kick:         50,
		UsersDefault: 100,
		Users:        map[string]int{"@a": 49},
	}

	if pl.CanBanOrKick("@a") {
		t.Error("@a is explicitly listed below both thresholds")
	}
	if !pl.CanBanOrKick("@b") {
		t.Error("unlisted user at users_default 100 should pass")
	}
}

func TestCanBanOrKickBelowBothThresholds(t *testing.T) {
	pl := NewPowerLevels()
	if pl.CanBanOrKick("@nobody:example.com") {
		t.Error("users_default 0 against ban=kick=50 should fail")
	}
}
