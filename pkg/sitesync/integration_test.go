//go:build integration

package sitesync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dyluth/sitesync/pkg/inventory"
	"github.com/dyluth/sitesync/pkg/persist"
	"github.com/dyluth/sitesync/pkg/projects"
	"github.com/dyluth/sitesync/pkg/realtime"
	"github.com/dyluth/sitesync/pkg/remote"
	"github.com/dyluth/sitesync/pkg/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) *redis.Options {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	opts, err := redis.ParseURL(fmt.Sprintf("redis://%s:%s", host, port.Port()))
	require.NoError(t, err)
	return opts
}

func TestIntegration_RealtimeOverRedis(t *testing.T) {
	opts := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	api, url := newAPIServer(t, projects.Project{ID: "A", Name: "Alpha"}, projects.Project{ID: "B", Name: "Bravo"})
	sess := session.New()
	rc, err := remote.New(url, sess)
	require.NoError(t, err)

	transport, err := realtime.NewClient(opts, "it", rc, nil)
	require.NoError(t, err)
	store, err := persist.NewRedis(opts, "it")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client, err := New(Options{Session: sess, Remote: rc, Persist: store, Transport: transport})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	publisher, err := realtime.NewClient(opts, "it", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { publisher.Close() })

	require.NoError(t, client.Login(ctx, "tok", alice))
	_, report, err := client.SelectProject(ctx, "A")
	require.NoError(t, err)
	require.True(t, report.OK(), "failed: %v", report.Failed())
	assert.Equal(t, 2, api.count("POST /realtime/auth"), "user and project channels authorized")

	api.set("GET /projects/A/inventory", []inventory.Item{{ID: "i1", ProjectID: "A", Name: "Lumber"}})
	require.NoError(t, publisher.Publish(ctx, realtime.ProjectChannel("A"), realtime.InventoryCreated, map[string]string{"id": "i1"}))
	require.Eventually(t, func() bool {
		return len(client.Inventory().Items()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	_, _, err = client.SelectProject(ctx, "B")
	require.NoError(t, err)
	before := api.count("GET /projects/A/inventory")
	require.NoError(t, publisher.Publish(ctx, realtime.ProjectChannel("A"), realtime.InventoryUpdated, nil))
	require.NoError(t, publisher.Publish(ctx, realtime.ProjectChannel("B"), realtime.TeamUpdated, nil))
	require.Eventually(t, func() bool {
		return api.count("GET /projects/B/team") == 2
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, before, api.count("GET /projects/A/inventory"), "no handler for A after the switch")

	// The snapshot of A survives in Redis.
	raw, err := store.Load(ctx, persist.StoreKey(inventory.Name, "A"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Lumber")
}
