package realtime

import (
	"fmt"
	"strings"
)

// Channel name helpers
//
// Logical channels are what the API authorizes; Redis channels are the same
// names scoped by namespace so several deployments can share one server.
//
// Logical pattern: private-project-{project_id}, private-user-{user_id}
// Redis pattern:   sitesync:{namespace}:{logical}

const privatePrefix = "private-"

// ProjectChannel returns the channel carrying a project's events.
func ProjectChannel(projectID string) string {
	return privatePrefix + "project-" + projectID
}

// UserChannel returns the channel carrying a user's events.
func UserChannel(userID string) string {
	return privatePrefix + "user-" + userID
}

// RedisChannel returns the namespaced Redis channel for a logical channel.
func RedisChannel(namespace, channel string) string {
	return fmt.Sprintf("sitesync:%s:%s", namespace, channel)
}

func isPrivate(channel string) bool {
	return strings.HasPrefix(channel, privatePrefix)
}
