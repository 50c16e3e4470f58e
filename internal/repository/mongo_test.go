package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	runStoreContract(t, func(t *testing.T) *Store {
		ctx := context.Background()
		store, err := OpenMongo(ctx, uri, fmt.Sprintf("tasks_test_%d", time.Now().UnixNano()))
		if err != nil {
			t.Fatalf("open mongo: %v", err)
		}
		t.Cleanup(func() {
			mt := store.Tasks.(*MongoTaskRepository)
			_ = mt.tasks.Database().Drop(ctx)
			_ = store.Close(ctx)
		})
		return store
	})
}
