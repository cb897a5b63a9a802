package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrUnknownEventType is returned when decoding an event whose type is not
// part of the payload set.
var ErrUnknownEventType = errors.New("unknown event type")

type wireEvent struct {
	Type       EventType         `json:"type"`
	Payload    json.RawMessage   `json:"payload"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// EncodeEvent serialises e for the websocket and Redis transports.
func EncodeEvent(e Event) ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("encode event %q: nil payload", e.Type)
	}
	if e.Payload.EventType() != e.Type {
		return nil, fmt.Errorf("encode event %q: payload is %q", e.Type, e.Payload.EventType())
	}

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	return json.Marshal(wireEvent{
		Type:       e.Type,
		Payload:    payload,
		Metadata:   e.Metadata,
		OccurredAt: e.OccurredAt,
	})
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}

	payload, err := decodePayload(w.Type, w.Payload)
	if err != nil {
		return Event{}, err
	}

	return Event{
		Type:       w.Type,
		Payload:    payload,
		Metadata:   w.Metadata,
		OccurredAt: w.OccurredAt,
	}, nil
}

func decodePayload(t EventType, raw json.RawMessage) (EventPayload, error) {
	switch t {
	case EventCommentCreated:
		return decodeInto[CommentCreated](t, raw)
	case EventCommentUpdated:
		return decodeInto[CommentUpdated](t, raw)
	case EventCommentDeleted:
		return decodeInto[CommentDeleted](t, raw)
	case EventCommentResolved:
		return decodeInto[CommentResolved](t, raw)
	case EventCommentAssigned:
		return decodeInto[CommentAssigned](t, raw)
	case EventCommentReplied:
		return decodeInto[CommentReplied](t, raw)
	case EventCommentReacted:
		return decodeInto[CommentReacted](t, raw)
	case EventCollaborationCursor:
		return decodeInto[CursorMoved](t, raw)
	case EventCollaborationTyping:
		return decodeInto[TypingChanged](t, raw)
	case EventAIAnalysisComplete:
		return decodeInto[AnalysisCompleted](t, raw)
	case EventAISuggestionsReady:
		return decodeInto[SuggestionsReady](t, raw)
	case EventExportStarted:
		return decodeInto[ExportStarted](t, raw)
	case EventExportProgress:
		return decodeInto[ExportProgressed](t, raw)
	case EventExportComplete:
		return decodeInto[ExportCompleted](t, raw)
	case EventExportFailed:
		return decodeInto[ExportFailed](t, raw)
	case EventNotificationCreated:
		return decodeInto[NotificationCreated](t, raw)
	case EventMetricsUpdated:
		return decodeInto[MetricsUpdated](t, raw)
	case EventSystemError:
		return decodeInto[SystemError](t, raw)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
}

func decodeInto[P EventPayload](t EventType, raw json.RawMessage) (EventPayload, error) {
	var p P
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode %q payload: empty", t)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %q payload: %w", t, err)
	}
	return p, nil
}
