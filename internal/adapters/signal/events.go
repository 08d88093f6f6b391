package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// Inbound envelope. Type selects the command; the other fields are
// filled per type.
type commandEnvelope struct {
	Type        string `json:"type"`
	RoomID      string `json:"roomId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Body        string `json:"body,omitempty"`
	TargetID    string `json:"targetId,omitempty"`
}

// Outbound events.
type stateEvent struct {
	Type    string           `json:"type"`
	Session core.RoomSession `json:"session"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type pongEvent struct {
	Type string `json:"type"`
}

func newStateEvent(snap core.RoomSession) stateEvent {
	return stateEvent{Type: "state", Session: snap}
}

func marshalState(snap core.RoomSession) ([]byte, error) {
	return json.Marshal(newStateEvent(snap))
}

func newErrorEvent(err error) errorEvent {
	return errorEvent{Type: "error", Code: errorCode(err), Message: err.Error()}
}

// errorCode maps the command failure taxonomy to wire codes the UI can
// switch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomUnavailable):
		return "room_unavailable"
	case errors.Is(err, domain.ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, domain.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, domain.ErrMessageTooLong):
		return "message_too_long"
	case errors.Is(err, domain.ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, domain.ErrDisplayNameEmpty), errors.Is(err, domain.ErrDisplayNameTooLong):
		return "bad_display_name"
	default:
		return "internal"
	}
}
