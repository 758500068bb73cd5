package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEventType is returned when a payload carries a type outside the PostEvent set
var ErrUnknownEventType = errors.New("unknown event type")

// Encode serializes an event for transport. The event type travels separately
// (EventBridge DetailType, or the envelope of the local bus).
func Encode(event PostEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.GetEventType(), err)
	}
	return data, nil
}

// Decode rebuilds a PostEvent from its type and JSON detail
func Decode(eventType string, detail []byte) (PostEvent, error) {
	switch eventType {
	case TypePostCreated:
		return decodeAs[PostCreated](eventType, detail)
	case TypePostDeleted:
		return decodeAs[PostDeleted](eventType, detail)
	case TypePostLiked:
		return decodeAs[PostLiked](eventType, detail)
	case TypePostUnliked:
		return decodeAs[PostUnliked](eventType, detail)
	case TypePostViewed:
		return decodeAs[PostViewed](eventType, detail)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}

func decodeAs[T PostEvent](eventType string, detail []byte) (PostEvent, error) {
	var event T
	if err := json.Unmarshal(detail, &event); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}
	return event, nil
}
