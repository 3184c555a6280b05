package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	srv, client := newMiniRedis(t)
	repo := NewCacheRepository(client, nil)
	ctx := context.Background()

	var listings []models.VacancyListing
	assert.ErrorIs(t, repo.Get(ctx, "ttr:vacancies:open", &listings), appErrors.ErrCacheMiss)

	in := []models.VacancyListing{{ID: "v1", SchoolName: "Lincoln High", Reference: "Lincoln High|v1"}}
	require.NoError(t, repo.Set(ctx, "ttr:vacancies:open", in, time.Minute))
	require.NoError(t, repo.Get(ctx, "ttr:vacancies:open", &listings))
	assert.Equal(t, in, listings)

	srv.FastForward(2 * time.Minute)
	assert.ErrorIs(t, repo.Get(ctx, "ttr:vacancies:open", &listings), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "ttr:vacancies:open", in, time.Minute))
	require.NoError(t, repo.Delete(ctx, "ttr:vacancies:open"))
	assert.False(t, srv.Exists("ttr:vacancies:open"))
}

func TestCacheRepositoryDropsCorruptEntries(t *testing.T) {
	srv, client := newMiniRedis(t)
	repo := NewCacheRepository(client, nil)
	require.NoError(t, srv.Set("ttr:vacancies:open", "{not json"))

	var listings []models.VacancyListing
	assert.ErrorIs(t, repo.Get(context.Background(), "ttr:vacancies:open", &listings), appErrors.ErrCacheMiss)
	assert.False(t, srv.Exists("ttr:vacancies:open"))
}

func TestCacheRepositoryWithoutClientMisses(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var out string
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", "v", time.Minute))
	assert.NoError(t, repo.Delete(context.Background(), "k"))
}

func TestRedisDeliveryLedgerClaimOnce(t *testing.T) {
	srv, client := newMiniRedis(t)
	ledger := NewRedisDeliveryLedger(client, time.Hour)
	ctx := context.Background()

	ok, err := ledger.Claim(ctx, "evt-1", "A@x.test")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.Claim(ctx, "evt-1", "a@x.test ")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ledger.Release(ctx, "evt-1", "a@x.test"))
	ok, err = ledger.Claim(ctx, "evt-1", "a@x.test")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, time.Hour, srv.TTL("ttr:delivery:evt-1:a@x.test"))
}
