package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/powermem-recall/pkg/resilience"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

func TestGuard_TripsAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	g := resilience.NewGuard(resilience.Config{
		Name:        "test",
		MaxFailures: 2,
		Timeout:     time.Hour,
		OnStateChange: func(_, from, to string) {
			transitions = append(transitions, from+"->"+to)
		},
	})

	boom := errors.New("boom")
	fail := func(context.Context) (interface{}, error) { return nil, boom }

	_, err := g.Execute(context.Background(), fail)
	assert.ErrorIs(t, err, boom)
	_, err = g.Execute(context.Background(), fail)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "open", g.State())

	_, err = g.Execute(context.Background(), func(context.Context) (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, types.ErrCircuitOpen)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestGuard_PassesResults(t *testing.T) {
	g := resilience.NewGuard(resilience.Config{RequestsPerSecond: 1000, Burst: 5})
	out, err := g.Execute(context.Background(), func(context.Context) (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, "closed", g.State())
}

func TestGuard_CancelledContext(t *testing.T) {
	g := resilience.NewGuard(resilience.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := g.Execute(ctx, func(context.Context) (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
