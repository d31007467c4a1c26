package projects

import (
	"time"

	"github.com/dyluth/sitesync/pkg/tempid"
)

// Project is a construction project visible to the client.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Budget      int64     `json:"budget"`
	Progress    float64   `json:"progress"`
	TeamSize    int       `json:"teamSize"`
	OwnerID     string    `json:"ownerId,omitempty"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsLocal reports whether the project only exists on this client.
func (p Project) IsLocal() bool {
	return tempid.Is(p.ID)
}

// StatusPlanning is the status given to new projects.
const StatusPlanning = "planning"

// Input describes a new project.
type Input struct {
	Name        string
	Budget      int64
	Location    string
	Description string
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	Status      *string
	Budget      *int64
	Progress    *float64
	Location    *string
	Description *string
}

func (p Patch) apply(pr Project) Project {
	if p.Name != nil {
		pr.Name = *p.Name
	}
	if p.Status != nil {
		pr.Status = *p.Status
	}
	if p.Budget != nil {
		pr.Budget = *p.Budget
	}
	if p.Progress != nil {
		pr.Progress = *p.Progress
	}
	if p.Location != nil {
		pr.Location = *p.Location
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	return pr
}
