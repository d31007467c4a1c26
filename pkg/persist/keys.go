package persist

import "fmt"

// Key helpers
//
// Keys are scoped by purpose so several stores can share one backend:
//
//	store:{store_name}:{project_id}   serialized domain store snapshot
//	projects:local                    project list (remote cache + local-only projects)
//	projects:current                  current-project pointer
//	projects:owner                    local owner id used for offline projects

const (
	// LocalProjectsKey holds the persisted project list.
	LocalProjectsKey = "projects:local"

	// CurrentProjectKey holds the id of the selected project.
	CurrentProjectKey = "projects:current"

	// OwnerKey holds the local owner id stamped on offline projects.
	OwnerKey = "projects:owner"
)

// StoreKey returns the key for a domain store snapshot.
// Pattern: store:{store_name}:{project_id}
func StoreKey(storeName, projectID string) string {
	return fmt.Sprintf("store:%s:%s", storeName, projectID)
}
