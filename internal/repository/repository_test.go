package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/maheshrc27/postlater/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to POSTGRES_TEST_URI and applies the migrations.
func setupTestDB(t *testing.T) *sql.DB {
	uri := os.Getenv("POSTGRES_TEST_URI")
	if uri == "" {
		t.Skip("Database tests require POSTGRES_TEST_URI")
	}

	db, err := sql.Open("postgres", uri)
	if err != nil {
		t.Logf("Failed to connect to test database: %v", err)
		t.Skip("Database tests require PostgreSQL connection")
	}
	if err := db.Ping(); err != nil {
		t.Logf("Failed to ping test database: %v", err)
		t.Skip("Database tests require PostgreSQL connection")
	}
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestPost(t *testing.T, db *sql.DB, sendAt time.Time) (*models.Account, *models.Post) {
	ctx := context.Background()
	account := &models.Account{UserID: 1, AccountType: models.AccountTypeMastodon}
	id, err := NewAccountRepository(db).Create(ctx, nil, account)
	require.NoError(t, err)
	account.ID = id

	post := &models.Post{UserID: 1, AccountID: id, Content: "hello", SendableState: models.SendableState{SendAt: sendAt}}
	post.ID, err = NewPostRepository(db).Create(ctx, nil, post)
	require.NoError(t, err)
	return account, post
}

func TestPostLease(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	_, post := createTestPost(t, db, now.Add(-time.Minute))
	repo := NewPostRepository(db)

	claimed, err := repo.Claim(ctx, post.ID, "token-a", now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, "token-a", models.StringValue(claimed.LockToken))
	assert.Equal(t, models.StatusPending, claimed.Status)

	_, err = repo.Claim(ctx, post.ID, "token-b", now.Add(time.Hour), now)
	assert.ErrorIs(t, err, ErrLeaseConflict)

	claimed.Status = models.StatusError
	claimed.NumFailures = 1
	assert.ErrorIs(t, repo.Save(ctx, claimed, "token-b"), ErrLeaseConflict)
	require.NoError(t, repo.Save(ctx, claimed, "token-a"))

	stored, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, stored.Status)
	assert.Equal(t, 1, stored.NumFailures)
	assert.Nil(t, stored.LockToken)
	assert.Nil(t, stored.LockedUntil)

	// An expired lease can be taken over.
	_, err = repo.Claim(ctx, post.ID, "token-c", now.Add(time.Minute), now)
	require.NoError(t, err)
	_, err = repo.Claim(ctx, post.ID, "token-d", now.Add(2*time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Release(ctx, post.ID, "token-c"), ErrLeaseConflict)
	require.NoError(t, repo.Release(ctx, post.ID, "token-d"))
}

func TestPostMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)

	post, err := repo.GetByID(context.Background(), -1)
	require.NoError(t, err)
	assert.Nil(t, post)

	_, err = repo.Claim(context.Background(), -1, "token", time.Now().Add(time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostJobCandidates(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	_, due := createTestPost(t, db, now)
	_, later := createTestPost(t, db, now.Add(time.Hour))

	posts, err := NewPostRepository(db).ListJobCandidates(context.Background(), now)
	require.NoError(t, err)

	ids := make(map[int64]bool)
	for _, p := range posts {
		ids[p.ID] = true
	}
	assert.True(t, ids[due.ID])
	assert.False(t, ids[later.ID])
}

func TestAccountRemoveTrashes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	account, post := createTestPost(t, db, time.Now())
	repo := NewAccountRepository(db)

	require.NoError(t, repo.SetCredential(ctx, account.ID, "sealed"))
	require.NoError(t, repo.Remove(ctx, account.ID))

	stored, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusTrashed, stored.AccountStatus)
	assert.Nil(t, stored.Credential)

	kept, err := NewPostRepository(db).GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	assert.ErrorIs(t, repo.Remove(ctx, -1), ErrNotFound)
}
