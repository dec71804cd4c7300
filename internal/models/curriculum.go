package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Course is the minimal read model of the curriculum needed to rebuild a
// notification after the client lost its cached copy. Course authoring and
// the rest of the curriculum CRUD live elsewhere in the platform.
type Course struct {
	ID    string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Type  string `gorm:"type:varchar(64);not null;index" json:"type"`
	Title string `gorm:"type:text;not null" json:"title"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// CourseDay joins a course to one day of its schedule.
type CourseDay struct {
	ID       string `gorm:"type:varchar(36);primaryKey" json:"id"`
	CourseID string `gorm:"type:varchar(36);not null;index" json:"course_id"`
	Order    int    `gorm:"column:day_order;not null" json:"order"`

	Course Course `gorm:"foreignKey:CourseID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *CourseDay) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// Step is a single training step within a course day. Position is the
// zero-based index the clients use to address steps.
type Step struct {
	ID          string `gorm:"type:varchar(36);primaryKey" json:"id"`
	CourseDayID string `gorm:"type:varchar(36);not null;index" json:"course_day_id"`
	Position    int    `gorm:"not null" json:"position"`
	Title       string `gorm:"type:text;not null" json:"title"`
	DurationSec int64  `gorm:"not null;default:0" json:"duration_sec"`

	CourseDay CourseDay `gorm:"foreignKey:CourseDayID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Step) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
