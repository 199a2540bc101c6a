package domain

import "strings"

// IdentitySource records which claim field produced an identity.
type IdentitySource string

const (
	SourceUserObject    IdentitySource = "user.id"
	SourceUserObjectAlt IdentitySource = "user._id"
	SourceUserIDField   IdentitySource = "userId"
	SourceBareID        IdentitySource = "id"
	// SourceTransport marks an unresolved claim: the identity is the
	// connection's own transport id.
	SourceTransport IdentitySource = "transport"
)

// Claim is the identity material presented at handshake.
type Claim struct {
	UserObjectID    string
	UserObjectAltID string
	UserID          string
	BareID          string
}

// Identity is the result of ResolveIdentity.
type Identity struct {
	ID     string
	Source IdentitySource
}

// Resolved is false when the identity fell back to the transport id.
func (i Identity) Resolved() bool {
	return i.Source != SourceTransport
}

// ResolveIdentity walks the claim fields in priority order and falls back to
// transportID when none carries a usable value.
func ResolveIdentity(c Claim, transportID string) Identity {
	candidates := []struct {
		value  string
		source IdentitySource
	}{
		{c.UserObjectID, SourceUserObject},
		{c.UserObjectAltID, SourceUserObjectAlt},
		{c.UserID, SourceUserIDField},
		{c.BareID, SourceBareID},
	}
	for _, cand := range candidates {
		if v := strings.TrimSpace(cand.value); !IsBlankName(v) {
			return Identity{ID: v, Source: cand.source}
		}
	}
	return Identity{ID: transportID, Source: SourceTransport}
}

// IsBlankName reports whether a room or identity name is empty or one of
// the placeholder strings clients send for missing values.
func IsBlankName(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "null", "undefined":
		return true
	}
	return false
}

// Origin identifies where a request entered the system. ConnID is empty for
// REST calls.
type Origin struct {
	ConnID string
	UserID string
}

// FromConnection reports whether the request arrived over a live connection.
func (o Origin) FromConnection() bool {
	return o.ConnID != ""
}
