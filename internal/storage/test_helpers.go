package storage

import (
	"context"
	"testing"
	"time"
)

// testContext returns a context cancelled at test cleanup or after 30s,
// whichever comes first. Migrations on a cold database can be slow.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
