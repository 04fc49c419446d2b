package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/service"
)

type countingCycler struct {
	calls atomic.Int32
	first chan struct{}
	err   error
}

func (c *countingCycler) RunCycle(ctx context.Context) (*service.CycleReport, error) {
	if c.calls.Add(1) == 1 {
		close(c.first)
	}
	return &service.CycleReport{}, c.err
}

func TestRunner_CyclesImmediatelyAndStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	cy := &countingCycler{first: make(chan struct{}), err: errors.New("list due campaigns: db down")}
	r := service.NewRunner(cy, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-cy.first:
	case <-time.After(time.Second):
		t.Fatal("runner did not cycle on start")
	}
	require.Eventually(t, func() bool { return cy.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestNewRunner_DefaultInterval(t *testing.T) {
	r := service.NewRunner(&countingCycler{first: make(chan struct{})}, 0, zap.NewNop())
	assert.Equal(t, time.Hour, r.Interval)
}
