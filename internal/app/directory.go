package app

import (
	"context"

	"github.com/dkeye/Gather/internal/domain"
)

// Resolution is what the directory knows about a room at join time: who
// is already in it (join order) and which role the joiner receives.
type Resolution struct {
	Roster   []*domain.Participant
	SelfRole domain.Role
}

// Directory resolves room identifiers and decides join eligibility.
// Unknown or expired rooms fail with domain.ErrRoomUnavailable.
type Directory interface {
	ResolveRoom(ctx context.Context, roomID domain.RoomID) (*Resolution, error)
}
