package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("store", func(ctx context.Context) Status { return StatusOK })
	c.Register("slack", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("store", func(ctx context.Context) Status { return StatusOK })
	c.Register("slack", func(ctx context.Context) Status { return StatusDown })

	assert.False(t, c.IsReady(context.Background()))
	assert.Equal(t, StatusDown, c.Last()["slack"])
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("slack", Optional(func(context.Context) error { return errors.New("socket closed") }))

	results := c.RunAll(context.Background())
	assert.Equal(t, StatusDegraded, results["slack"])
	assert.True(t, Ready(results))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
	assert.Empty(t, c.Last())
}

func TestPing(t *testing.T) {
	assert.Equal(t, StatusOK, Ping(func(context.Context) error { return nil })(context.Background()))
	assert.Equal(t, StatusDown, Ping(func(context.Context) error { return errors.New("locked") })(context.Background()))
}

func TestChecker_Timeout(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.timeout = 10 * time.Millisecond
	c.Register("store", Ping(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	assert.False(t, c.IsReady(context.Background()))
}
