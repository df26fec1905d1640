package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestSetValueScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "session log", key: "sessions.widgets.2024-01-02", value: `[{"start":1,"end":2}]`},
		{name: "pending uploads", key: "pendingUploads", value: `{"widgets":[]}`},
		{name: "overwrite session log", key: "sessions.widgets.2024-01-02", value: `[{"start":1,"end":5}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valueKey := "timetrack:kv:" + tt.key
			indexKey := "timetrack:index"

			result := client.Eval(ctx, setValueScript, []string{valueKey, indexKey}, tt.key, tt.value)
			if result.Err() != nil {
				t.Fatalf("Script execution failed: %v", result.Err())
			}

			got, err := mr.Get(valueKey)
			if err != nil {
				t.Fatalf("Failed to read value: %v", err)
			}
			if got != tt.value {
				t.Errorf("Expected value %s, got %s", tt.value, got)
			}

			isMember, err := mr.SIsMember(indexKey, tt.key)
			if err != nil {
				t.Fatalf("Failed to check index: %v", err)
			}
			if !isMember {
				t.Errorf("Expected %s in index set", tt.key)
			}
		})
	}

	members, err := mr.Members("timetrack:index")
	if err != nil {
		t.Fatalf("Failed to list index: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("Expected 2 indexed keys after overwrite, got %d", len(members))
	}
}
