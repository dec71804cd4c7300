package curriculum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/coursebeat/coursebeat/internal/models"
	"github.com/coursebeat/coursebeat/internal/store"
)

func seedCourse(t *testing.T) (*gorm.DB, *models.CourseDay) {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)

	course := &models.Course{Type: "strength", Title: "Strength Basics"}
	require.NoError(t, db.Create(course).Error)
	day := &models.CourseDay{CourseID: course.ID, Order: 5}
	require.NoError(t, db.Create(day).Error)
	require.NoError(t, db.Create(&models.Step{
		CourseDayID: day.ID, Position: 1, Title: "Plank", DurationSec: 90,
	}).Error)

	return db, day
}

func TestResolveStep(t *testing.T) {
	db, day := seedCourse(t)
	lookup := NewLookup(db)

	info, err := lookup.ResolveStep(context.Background(), day.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, "Plank", info.Title)
	assert.Equal(t, "strength", info.CourseType)
	assert.Equal(t, 5, info.DayOrder)
}

func TestResolveStepNotFound(t *testing.T) {
	db, day := seedCourse(t)
	lookup := NewLookup(db)
	ctx := context.Background()

	_, err := lookup.ResolveStep(ctx, day.ID, 99)
	assert.ErrorIs(t, err, ErrStepNotFound)

	_, err = lookup.ResolveStep(ctx, "no-such-day", 1)
	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestStepURL(t *testing.T) {
	assert.Equal(t, "/courses/strength/days/5?step=1", StepURL("strength", 5, 1))
}
