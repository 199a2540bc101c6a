package directory

import (
	"context"

	"github.com/weiawesome/autoschool-chat/internal/domain"
)

// ProfileDirectory resolves public profile fields of participants.
type ProfileDirectory interface {
	// GetProfiles returns the profiles found for ids, keyed by id. Unknown
	// ids are simply absent from the result.
	GetProfiles(ctx context.Context, ids []string) (map[string]*domain.Profile, error)
}

// AssignmentProvider lists the counterparts a user is assigned to: an
// instructor's candidates or a candidate's instructors.
type AssignmentProvider interface {
	Counterparts(ctx context.Context, userID string) ([]string, error)
}
