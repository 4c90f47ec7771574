package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryms/internal/store/testbackend"
)

func TestScheduler_DefaultSchedule(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t))
	logger, _ := test.NewNullLogger()

	s, err := NewScheduler(f.sweeper, DefaultSchedule(), time.Minute, logger)
	require.NoError(t, err)
	s.Start()
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	next := s.Next()
	require.Len(t, next, 4)
	expire := next[SweepExpire]
	assert.Equal(t, time.UTC, expire.Location())
	assert.Equal(t, 0, expire.Hour())
	assert.Equal(t, 5, expire.Minute())
	assert.Equal(t, 8, next[SweepOverdue].Hour())
	assert.Equal(t, 20, next[SweepOverdue].Minute())
}

func TestScheduler_PartialSchedule(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t))
	logger, _ := test.NewNullLogger()

	s, err := NewScheduler(f.sweeper, Schedule{SweepExpire: "@hourly", SweepOverdue: ""}, time.Minute, logger)
	require.NoError(t, err)
	assert.Len(t, s.Next(), 1)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	f := newFixture(t, testbackend.Memory(t))
	logger, _ := test.NewNullLogger()

	_, err := NewScheduler(f.sweeper, Schedule{SweepExpire: "every day"}, time.Minute, logger)
	assert.ErrorContains(t, err, "schedule expire sweep")

	_, err = NewScheduler(f.sweeper, Schedule{"vacuum": "@daily"}, time.Minute, logger)
	assert.EqualError(t, err, `unknown sweep "vacuum" in schedule`)
}
