package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postservice/pkg/observability"
)

type pingCommand struct {
	Target string
}

func (c pingCommand) Validate() error {
	if c.Target == "" {
		return errors.New("target is required")
	}
	return nil
}

type otherCommand struct{}

func (otherCommand) Validate() error { return nil }

func TestCommandBus_DispatchesThroughMiddleware(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next CommandHandler) CommandHandler {
			return CommandHandlerFunc(func(ctx context.Context, cmd Command) error {
				order = append(order, name)
				return next.Handle(ctx, cmd)
			})
		}
	}

	b := NewCommandBus(trace("outer"), trace("inner"), LoggingMiddleware(zap.NewNop()), MetricsMiddleware(observability.NewMetrics("test")))

	var got string
	require.NoError(t, b.Register(pingCommand{}, Typed(func(ctx context.Context, cmd pingCommand) error {
		got = cmd.Target
		return nil
	})))

	require.NoError(t, b.Send(context.Background(), pingCommand{Target: "a"}))
	assert.Equal(t, "a", got)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestCommandBus_Errors(t *testing.T) {
	b := NewCommandBus()
	handlerErr := errors.New("boom")
	require.NoError(t, b.Register(pingCommand{}, Typed(func(context.Context, pingCommand) error { return handlerErr })))

	assert.Error(t, b.Register(pingCommand{}, CommandHandlerFunc(func(context.Context, Command) error { return nil })))
	assert.EqualError(t, b.Send(context.Background(), pingCommand{}), "target is required")
	assert.ErrorIs(t, b.Send(context.Background(), pingCommand{Target: "x"}), handlerErr)
	assert.ErrorIs(t, b.Send(context.Background(), otherCommand{}), ErrHandlerNotFound)
}
