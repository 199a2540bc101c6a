package domain

// Role of a platform user.
type Role string

const (
	RoleCandidate  Role = "candidate"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Profile holds the public fields of a participant.
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      Role   `json:"role,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

// Conversation summarises a user's history with one counterpart.
// LastMessage is nil for counterparts with no history yet.
type Conversation struct {
	CounterpartID string   `json:"counterpartId"`
	User          *Profile `json:"user"`
	LastMessage   *Message `json:"lastMessage"`
	UnreadCount   int64    `json:"unreadCount"`
}
