package schedule

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a stage.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Task is a unit of work inside a stage.
type Task struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Done     bool   `json:"done"`
	Assignee string `json:"assignee,omitempty"`
}

// ChecklistItem is an inspection or sign-off point.
type ChecklistItem struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

// Stage is a phase of the build schedule.
type Stage struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"projectId"`
	Name        string          `json:"name"`
	Order       int             `json:"order"`
	Status      Status          `json:"status"`
	StartDate   time.Time       `json:"startDate,omitzero"`
	EndDate     time.Time       `json:"endDate,omitzero"`
	Tasks       []Task          `json:"tasks"`
	Checklist   []ChecklistItem `json:"checklist"`
	Notes       string          `json:"notes,omitempty"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Overdue reports whether the stage should have finished before now.
func (s Stage) Overdue(now time.Time) bool {
	return s.Status != StatusCompleted && !s.EndDate.IsZero() && s.EndDate.Before(now)
}

func (s Stage) clone() Stage {
	s.Tasks = slices.Clone(s.Tasks)
	s.Checklist = slices.Clone(s.Checklist)
	return s
}

// Input describes a new stage.
type Input struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Tasks     []Task
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Name      *string
	Status    *Status
	StartDate *time.Time
	EndDate   *time.Time
}

func (p Patch) apply(s Stage) Stage {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.StartDate != nil {
		s.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		s.EndDate = *p.EndDate
	}
	return s
}
