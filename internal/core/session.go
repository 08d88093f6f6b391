// Package core holds the authoritative in-memory model of one active
// room session and the store that applies atomic mutations to it.
package core

import (
	"github.com/dkeye/Gather/internal/domain"
)

// Phase is the room session lifecycle state. Left is terminal.
type Phase string

const (
	PhaseJoining Phase = "joining"
	PhaseActive  Phase = "active"
	PhaseLeaving Phase = "leaving"
	PhaseLeft    Phase = "left"
)

// legalNext is the only allowed forward step from each phase.
func (p Phase) legalNext(to Phase) bool {
	switch p {
	case PhaseJoining:
		return to == PhaseActive
	case PhaseActive:
		return to == PhaseLeaving
	case PhaseLeaving:
		return to == PhaseLeft
	}
	return false
}

// RoomSession is the aggregate root for one call. It is exclusively
// owned by its store; everything handed out of the store is a deep copy.
// Rosters are conference-sized, so lookups just walk the slice and the
// struct stays trivially JSON-serializable for transports.
type RoomSession struct {
	RoomID domain.RoomID        `json:"roomId"`
	SelfID domain.ParticipantID `json:"selfId"`
	Phase  Phase                `json:"phase"`

	// Participants preserves join order for deterministic display.
	Participants []*domain.Participant `json:"participants"`
	Messages     []domain.ChatMessage  `json:"messages"`
}

func newRoomSession(roomID domain.RoomID, self *domain.Participant) *RoomSession {
	s := &RoomSession{
		RoomID: roomID,
		SelfID: self.ID,
		Phase:  PhaseJoining,
	}
	s.addParticipant(self)
	return s
}

// Self returns the local participant, nil after it left the roster.
func (s *RoomSession) Self() *domain.Participant {
	p, _ := s.Participant(s.SelfID)
	return p
}

func (s *RoomSession) Participant(id domain.ParticipantID) (*domain.Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (s *RoomSession) RosterSize() int { return len(s.Participants) }

func (s *RoomSession) hostCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.Role == domain.RoleHost {
			n++
		}
	}
	return n
}

func (s *RoomSession) addParticipant(p *domain.Participant) bool {
	if _, exists := s.Participant(p.ID); exists {
		return false
	}
	s.Participants = append(s.Participants, p)
	return true
}

func (s *RoomSession) removeParticipant(id domain.ParticipantID) bool {
	for i, p := range s.Participants {
		if p.ID == id {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// clone deep-copies the session so snapshots never alias live state.
func (s *RoomSession) clone() *RoomSession {
	cp := &RoomSession{
		RoomID: s.RoomID,
		SelfID: s.SelfID,
		Phase:  s.Phase,
	}
	cp.Participants = make([]*domain.Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		cp.Participants = append(cp.Participants, p.Clone())
	}
	cp.Messages = append([]domain.ChatMessage(nil), s.Messages...)
	return cp
}
