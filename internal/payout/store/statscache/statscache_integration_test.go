//go:build integration

package statscache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"payouts/internal/payout/models"
	"payouts/pkg/testutil/containers"
)

type StatsCacheSuite struct {
	suite.Suite
	ctx   context.Context
	redis *containers.RedisContainer
}

func TestStatsCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(StatsCacheSuite))
}

func (s *StatsCacheSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *StatsCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *StatsCacheSuite) TestMissThenRoundTrip() {
	cache := New(s.redis.Client)

	stats, err := cache.Get(s.ctx)
	s.Require().NoError(err)
	s.Nil(stats, "empty cache must read as a miss, not an error")

	want := &models.Stats{
		Total:         5,
		Pending:       3,
		Paid:          2,
		PendingStripe: 2,
		PendingManual: 1,
		PendingAmount: 285_000,
		PaidAmount:    190_000,
	}
	s.Require().NoError(cache.Set(s.ctx, want))

	stats, err = cache.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal(want, stats)
}

func (s *StatsCacheSuite) TestInvalidate() {
	cache := New(s.redis.Client)
	s.Require().NoError(cache.Set(s.ctx, &models.Stats{Total: 1}))
	s.Require().NoError(cache.Invalidate(s.ctx))

	stats, err := cache.Get(s.ctx)
	s.Require().NoError(err)
	s.Nil(stats)
}

func (s *StatsCacheSuite) TestInvalidateEmptyCacheIsHarmless() {
	cache := New(s.redis.Client)
	s.NoError(cache.Invalidate(s.ctx))
}

func (s *StatsCacheSuite) TestEntryExpires() {
	cache := New(s.redis.Client, WithTTL(100*time.Millisecond))
	s.Require().NoError(cache.Set(s.ctx, &models.Stats{Total: 7}))

	s.Require().Eventually(func() bool {
		stats, err := cache.Get(s.ctx)
		return err == nil && stats == nil
	}, 2*time.Second, 50*time.Millisecond, "cached stats must expire after the TTL")
}
