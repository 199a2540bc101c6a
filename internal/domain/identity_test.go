package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentity(t *testing.T) {
	tests := []struct {
		name   string
		claim  Claim
		id     string
		source IdentitySource
	}{
		{name: "user object wins", claim: Claim{UserObjectID: "a", UserObjectAltID: "b", UserID: "c", BareID: "d"}, id: "a", source: SourceUserObject},
		{name: "alternate id", claim: Claim{UserObjectAltID: "b", UserID: "c"}, id: "b", source: SourceUserObjectAlt},
		{name: "userId field", claim: Claim{UserID: "c", BareID: "d"}, id: "c", source: SourceUserIDField},
		{name: "bare id", claim: Claim{BareID: "d"}, id: "d", source: SourceBareID},
		{name: "sentinels skipped", claim: Claim{UserObjectID: "undefined", UserID: "null", BareID: " d "}, id: "d", source: SourceBareID},
		{name: "transport fallback", claim: Claim{}, id: "conn-1", source: SourceTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveIdentity(tt.claim, "conn-1")
			assert.Equal(t, tt.id, got.ID)
			assert.Equal(t, tt.source, got.Source)
			assert.Equal(t, tt.source != SourceTransport, got.Resolved())
		})
	}
}

func TestIsBlankName(t *testing.T) {
	for _, s := range []string{"", "  ", "null", "undefined"} {
		assert.True(t, IsBlankName(s), s)
	}
	assert.False(t, IsBlankName("lesson:1"))
}

func TestJoinRoomPayload_Unmarshal(t *testing.T) {
	var p JoinRoomPayload
	require.NoError(t, json.Unmarshal([]byte(`"lesson:1"`), &p))
	assert.Equal(t, "lesson:1", p.RoomID)

	p = JoinRoomPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"roomId":"lesson:2"}`), &p))
	assert.Equal(t, "lesson:2", p.RoomID)

	p = JoinRoomPayload{}
	require.NoError(t, json.Unmarshal([]byte(`null`), &p))
	assert.Empty(t, p.RoomID)
}

func TestNewMessageError(t *testing.T) {
	env := NewMessageError(NewValidationError("receiver", "receiver is required"))
	payload, ok := env.Data.(MessageErrorPayload)
	require.True(t, ok)
	assert.Equal(t, EventMessageError, env.Type)
	assert.Equal(t, "receiver is required", payload.Error)
	assert.Equal(t, KindValidation, payload.Kind)
	assert.Equal(t, "receiver", payload.Field)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"messageError","data":{"error":"receiver is required","kind":"VALIDATION_ERROR","field":"receiver"}}`, string(raw))

	env = NewMessageError(errors.New("boom"))
	payload = env.Data.(MessageErrorPayload)
	assert.Equal(t, "boom", payload.Error)
	assert.Empty(t, payload.Kind)
}
