// Package curriculum exposes the read-only course lookup the scheduler needs
// when a notification has to be rebuilt from scratch after the client lost
// its cached copy.
package curriculum

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/coursebeat/coursebeat/internal/models"
)

var ErrStepNotFound = errors.New("step not found")

// StepInfo is what the scheduler needs to re-arm a timer: display title plus
// the pieces of the deep link back into the app.
type StepInfo struct {
	Title      string
	CourseType string
	DayOrder   int
}

type Lookup struct {
	db *gorm.DB
}

func NewLookup(db *gorm.DB) *Lookup {
	return &Lookup{db: db}
}

func (l *Lookup) ResolveStep(ctx context.Context, courseDayID string, stepIndex int) (*StepInfo, error) {
	var day models.CourseDay
	err := l.db.WithContext(ctx).Preload("Course").Where("id = ?", courseDayID).First(&day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStepNotFound
	}
	if err != nil {
		return nil, err
	}

	var step models.Step
	err = l.db.WithContext(ctx).
		Where("course_day_id = ? AND position = ?", courseDayID, stepIndex).
		First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStepNotFound
	}
	if err != nil {
		return nil, err
	}

	return &StepInfo{
		Title:      step.Title,
		CourseType: day.Course.Type,
		DayOrder:   day.Order,
	}, nil
}

// StepURL builds the in-app deep link that resumes a step.
func StepURL(courseType string, dayOrder, stepIndex int) string {
	return fmt.Sprintf("/courses/%s/days/%d?step=%d", courseType, dayOrder, stepIndex)
}
