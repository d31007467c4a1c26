package tempid

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.UnixMilli(1728900000000)
}

func TestSource_Next(t *testing.T) {
	t.Run("uses kind prefix and clock suffix", func(t *testing.T) {
		src := New("expense", fixedClock)
		assert.Equal(t, "temp-expense-1728900000000-1", src.Next())
		assert.Equal(t, "temp-expense-1728900000000-2", src.Next())
	})

	t.Run("local source", func(t *testing.T) {
		src := NewLocal("project", fixedClock)
		id := src.Next()
		assert.True(t, strings.HasPrefix(id, "local-project-"))
		assert.True(t, IsLocal(id))
		assert.True(t, Is(id))
	})

	t.Run("unique under concurrency", func(t *testing.T) {
		src := New("item", fixedClock)
		seen := make(map[string]bool)
		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := src.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}()
		}
		wg.Wait()
		require.Len(t, seen, 50)
	})
}

func TestIs(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"temp-expense-1-1", true},
		{"local-project-1-1", true},
		{"64f1c2a9e4b0", false},
		{"", false},
		{"attempt-1", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Is(tt.id), tt.id)
	}
}
