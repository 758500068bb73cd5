package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postservice/pkg/observability"
)

type echoQuery struct{ Value int }

func (echoQuery) Validate() error { return nil }

type unknownQuery struct{}

func (unknownQuery) Validate() error { return nil }

func TestQueryBus_AskAs(t *testing.T) {
	b := NewQueryBus(LoggingMiddleware(zap.NewNop()), MetricsMiddleware(observability.NewMetrics("test")))
	require.NoError(t, b.Register(echoQuery{}, Typed(func(_ context.Context, q echoQuery) (int, error) {
		return q.Value * 2, nil
	})))

	got, err := AskAs[int](context.Background(), b, echoQuery{Value: 21})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = AskAs[string](context.Background(), b, echoQuery{Value: 1})
	assert.Error(t, err)

	_, err = b.Ask(context.Background(), unknownQuery{})
	assert.ErrorIs(t, err, ErrHandlerNotFound)
}
