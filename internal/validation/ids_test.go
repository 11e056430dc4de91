package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRoomID(t *testing.T) {
	tests := []struct {
		name    string
		roomID  string
		wantErr bool
	}{
		{name: "simple", roomID: "drawing-1"},
		{name: "single char", roomID: "r"},
		{name: "uuid style", roomID: "7f5c2c4e-90b1-4a8e-b6d0-3a1f2e4b5c6d"},
		{name: "underscores", roomID: "team_alpha_board"},
		{name: "max length", roomID: strings.Repeat("a", 100)},
		{name: "empty", roomID: "", wantErr: true},
		{name: "too long", roomID: strings.Repeat("a", 101), wantErr: true},
		{name: "spaces", roomID: "my room", wantErr: true},
		{name: "slash", roomID: "a/b", wantErr: true},
		{name: "unicode", roomID: "комната", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomID(tt.roomID)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateClientID(t *testing.T) {
	assert.NoError(t, ValidateClientID("8e2a9f3c-1d4b-4c5e-9a6f-7b8c9d0e1f2a"))
	assert.Error(t, ValidateClientID(""))
	assert.Error(t, ValidateClientID("bad id"))
	assert.Error(t, ValidateClientID(strings.Repeat("x", 101)))
}
