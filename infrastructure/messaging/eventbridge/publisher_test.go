package eventbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postservice/domain/events"
	"postservice/pkg/observability"
)

type recordingClient struct {
	calls   [][]types.PutEventsRequestEntry
	respond func(call int, entries []types.PutEventsRequestEntry) (*eventbridge.PutEventsOutput, error)
}

func (c *recordingClient) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	c.calls = append(c.calls, in.Entries)
	if c.respond != nil {
		return c.respond(len(c.calls), in.Entries)
	}
	out := &eventbridge.PutEventsOutput{}
	for range in.Entries {
		out.Entries = append(out.Entries, types.PutEventsResultEntry{EventId: aws.String("id")})
	}
	return out, nil
}

func likes(n int) []events.PostEvent {
	batch := make([]events.PostEvent, n)
	for i := range batch {
		batch[i] = events.NewPostLiked("p1", "u1", time.Unix(int64(i), 0))
	}
	return batch
}

func TestPublisher_ChunksByTen(t *testing.T) {
	client := &recordingClient{}
	p := NewPublisher(client, "posts-bus", zap.NewNop(), observability.NewMetrics("test"))

	require.NoError(t, p.PublishBatch(context.Background(), likes(23)))

	require.Len(t, client.calls, 3)
	assert.Len(t, client.calls[0], 10)
	assert.Len(t, client.calls[2], 3)

	entry := client.calls[0][0]
	assert.Equal(t, "posts-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, events.SourcePostService, aws.ToString(entry.Source))
	assert.Equal(t, events.TypePostLiked, aws.ToString(entry.DetailType))

	decoded, err := events.Decode(aws.ToString(entry.DetailType), []byte(aws.ToString(entry.Detail)))
	require.NoError(t, err)
	assert.Equal(t, "p1", decoded.PartitionKey())
}

func TestPublisher_RetriesOnlyFailedEntries(t *testing.T) {
	client := &recordingClient{
		respond: func(call int, entries []types.PutEventsRequestEntry) (*eventbridge.PutEventsOutput, error) {
			out := &eventbridge.PutEventsOutput{}
			for i := range entries {
				if call == 1 && i == 1 {
					out.FailedEntryCount = 1
					out.Entries = append(out.Entries, types.PutEventsResultEntry{ErrorCode: aws.String("ThrottlingException")})
					continue
				}
				out.Entries = append(out.Entries, types.PutEventsResultEntry{EventId: aws.String("id")})
			}
			return out, nil
		},
	}
	p := NewPublisher(client, "bus", zap.NewNop(), nil)

	require.NoError(t, p.PublishBatch(context.Background(), likes(3)))
	require.Len(t, client.calls, 2)
	assert.Len(t, client.calls[1], 1)
}

func TestPublisher_GivesUpAfterRetries(t *testing.T) {
	client := &recordingClient{
		respond: func(int, []types.PutEventsRequestEntry) (*eventbridge.PutEventsOutput, error) {
			return nil, errors.New("network")
		},
	}
	p := NewPublisher(client, "bus", zap.NewNop(), nil)

	err := p.Publish(context.Background(), likes(1)[0])
	assert.Error(t, err)
	assert.Len(t, client.calls, 3)
}
