package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/pkg/database"
)

func newTestDirectory(t *testing.T) *GormDirectory {
	t.Helper()
	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, &domain.UserModel{}, &domain.AssignmentModel{}))

	require.NoError(t, db.Create([]domain.UserModel{
		{ID: "i1", FirstName: "Ina", LastName: "Instructor", Role: string(domain.RoleInstructor)},
		{ID: "c1", FirstName: "Cal", Role: string(domain.RoleCandidate)},
		{ID: "c2", FirstName: "Cleo", Role: string(domain.RoleCandidate)},
	}).Error)
	require.NoError(t, db.Create([]domain.AssignmentModel{
		{InstructorID: "i1", CandidateID: "c1", Active: true},
		{InstructorID: "i1", CandidateID: "c2", Active: true},
		{InstructorID: "i2", CandidateID: "c1", Active: true},
	}).Error)
	// Inactive rows must be written explicitly; the column default would turn false into true.
	require.NoError(t, db.Create(&domain.AssignmentModel{InstructorID: "i3", CandidateID: "c1", Active: true}).Error)
	require.NoError(t, db.Model(&domain.AssignmentModel{}).Where("instructor_id = ?", "i3").Update("active", false).Error)

	return NewGormDirectory(db)
}

func TestGetProfiles(t *testing.T) {
	d := newTestDirectory(t)

	profiles, err := d.GetProfiles(context.Background(), []string{"i1", "c1", "c1", "ghost"})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "Ina", profiles["i1"].FirstName)
	assert.Equal(t, domain.RoleCandidate, profiles["c1"].Role)
	assert.Nil(t, profiles["ghost"])

	empty, err := d.GetProfiles(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCounterparts(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	ids, err := d.Counterparts(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)

	ids, err = d.Counterparts(ctx, "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"i1", "i2"}, ids)

	ids, err = d.Counterparts(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
