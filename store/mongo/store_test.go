package mongo_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon/store"
	"github.com/xraph/reckon/store/mongo"
	"github.com/xraph/reckon/store/storetest"
)

var dbSeq atomic.Int64

// The conformance suite needs a replica set for transactions, e.g.
// RECKON_MONGO_URI=mongodb://localhost:27017/?replicaSet=rs0.
func TestConformanceMongo(t *testing.T) {
	uri := os.Getenv("RECKON_MONGO_URI")
	if uri == "" {
		t.Skip("RECKON_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		ctx := context.Background()

		name := fmt.Sprintf("reckon_test_%d_%d", os.Getpid(), dbSeq.Add(1))
		s, err := mongo.Connect(ctx, uri, name)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		t.Cleanup(func() {
			_ = s.DB().Drop(ctx)
			_ = s.Close()
		})
		return s
	})
}
