package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/floodwatch/internal/clock"
	twofactordomain "github.com/smallbiznis/floodwatch/internal/twofactor/domain"
	"github.com/smallbiznis/floodwatch/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&twofactordomain.Challenge{}))

	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	sched, err := New(Params{DB: conn, Log: zap.NewNop(), Clock: clk, Config: cfg})
	require.NoError(t, err)
	return sched, conn, clk
}

func insertChallenge(t *testing.T, conn *gorm.DB, id string, created time.Time, consumed *time.Time) {
	t.Helper()
	require.NoError(t, conn.Create(&twofactordomain.Challenge{
		ID:         id,
		AccountID:  1,
		Secret:     "SECRET",
		ExpiresAt:  created.Add(5 * time.Minute),
		ConsumedAt: consumed,
		CreatedAt:  created,
	}).Error)
}

func remaining(t *testing.T, conn *gorm.DB) []string {
	t.Helper()
	var ids []string
	require.NoError(t, conn.Model(&twofactordomain.Challenge{}).Order("id").Pluck("id", &ids).Error)
	return ids
}

func TestPurgeChallengesRespectsRetention(t *testing.T) {
	sched, conn, clk := newTestScheduler(t, Config{ChallengeRetention: time.Hour})
	now := clk.Now()

	usedLongAgo := now.Add(-3 * time.Hour)
	usedRecently := now.Add(-10 * time.Minute)

	insertChallenge(t, conn, "a-expired-old", now.Add(-2*time.Hour), nil)
	insertChallenge(t, conn, "b-expired-recent", now.Add(-30*time.Minute), nil)
	insertChallenge(t, conn, "c-pending", now.Add(-time.Minute), nil)
	insertChallenge(t, conn, "d-used-old", now.Add(-4*time.Hour), &usedLongAgo)
	insertChallenge(t, conn, "e-used-recent", now.Add(-11*time.Minute), &usedRecently)

	n, err := sched.PurgeChallenges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"b-expired-recent", "c-pending", "e-used-recent"}, remaining(t, conn))

	clk.Advance(2 * time.Hour)
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Empty(t, remaining(t, conn))
}

func TestPurgeChallengesBatches(t *testing.T) {
	sched, conn, clk := newTestScheduler(t, Config{BatchSize: 2, ChallengeRetention: time.Minute})
	old := clk.Now().Add(-time.Hour)

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		insertChallenge(t, conn, id, old, nil)
	}

	n, err := sched.PurgeChallenges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Empty(t, remaining(t, conn))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
}
