package directory

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/pkg/log"
)

// GormDirectory reads profiles and assignments from the platform database.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory creates a new GORM-based directory.
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// GetProfiles looks up ids in the users table.
func (d *GormDirectory) GetProfiles(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	profiles := make(map[string]*domain.Profile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	var users []domain.UserModel
	if err := d.db.WithContext(ctx).Where("id IN ?", dedupe(ids)).Find(&users).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int("ids", len(ids)).Msg("failed to load profiles")
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	for i := range users {
		profiles[users[i].ID] = users[i].ToProfile()
	}
	return profiles, nil
}

// Counterparts returns the active assignment partners of userID. Both
// directions are searched so callers need not know the user's role.
func (d *GormDirectory) Counterparts(ctx context.Context, userID string) ([]string, error) {
	l := log.Ctx(ctx)

	var rows []domain.AssignmentModel
	result := d.db.WithContext(ctx).
		Where("active = ?", true).
		Where("instructor_id = ? OR candidate_id = ?", userID, userID).
		Order("id ASC").
		Find(&rows)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to load assignments")
		return nil, fmt.Errorf("load assignments: %w", result.Error)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.InstructorID == userID {
			ids = append(ids, row.CandidateID)
		} else {
			ids = append(ids, row.InstructorID)
		}
	}
	return dedupe(ids), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
