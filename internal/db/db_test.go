package db

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a test database connection
// Skips test if DATABASE_URL is not set
func setupTestDB(t *testing.T) (*DB, func()) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping database test: DATABASE_URL not set")
	}

	db, err := New(context.Background())
	if err != nil {
		t.Skipf("Skipping database test: failed to connect: %v", err)
	}

	return db, db.Close
}

func TestNew(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	assert.NotNil(t, db.Pool())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNewRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := New(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestStatsWithoutPool(t *testing.T) {
	db := &DB{}
	total, idle, acquired := db.Stats()
	assert.Zero(t, total)
	assert.Zero(t, idle)
	assert.Zero(t, acquired)

	// Close on an empty DB is a no-op
	db.Close()
}
