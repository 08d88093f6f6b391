package core

import (
	"errors"
	"time"

	"github.com/dkeye/Gather/internal/domain"
)

// Mutation is one atomic state change committed to the store. Only the
// command processor constructs mutations; the store applies them
// all-or-nothing and rejects any that would break a session invariant.
type Mutation interface {
	// apply mutates a working copy of the session. A returned error
	// aborts the commit and leaves the store unchanged.
	apply(s *RoomSession, now time.Time) error
}

// ErrDuplicateParticipant and ErrParticipantAbsent are exported so the
// relay path can recognize re-delivered roster changes and drop them
// instead of treating them as corruption.
var (
	ErrDuplicateParticipant = errors.New("participant id already in roster")
	ErrParticipantAbsent    = errors.New("participant not in roster")

	errIllegalPhase = errors.New("illegal phase transition")
	errSelfAbsent   = errors.New("self missing from roster")
	errNoHost       = errors.New("no host in non-empty roster")
)

type ParticipantJoined struct {
	Participant *domain.Participant
}

func (m ParticipantJoined) apply(s *RoomSession, _ time.Time) error {
	if !s.addParticipant(m.Participant.Clone()) {
		return ErrDuplicateParticipant
	}
	return nil
}

type ParticipantLeft struct {
	ParticipantID domain.ParticipantID
}

func (m ParticipantLeft) apply(s *RoomSession, _ time.Time) error {
	if !s.removeParticipant(m.ParticipantID) {
		return ErrParticipantAbsent
	}
	// An emptied active room has nothing left to run; it collapses to
	// the terminal phase in the same commit.
	if s.Phase == PhaseActive && s.RosterSize() == 0 {
		s.Phase = PhaseLeft
		return nil
	}
	// If the last host left a non-empty room, the earliest-joined
	// remaining participant inherits the role. JoinedAt is shared by
	// every roster copy, so all sessions promote the same participant
	// regardless of local slice order.
	if s.RosterSize() > 0 && s.hostCount() == 0 {
		domain.EarliestJoined(s.Participants).Role = domain.RoleHost
	}
	return nil
}

type ParticipantDeviceChanged struct {
	ParticipantID domain.ParticipantID
	Device        domain.Device
	Enabled       bool
}

func (m ParticipantDeviceChanged) apply(s *RoomSession, _ time.Time) error {
	p, ok := s.Participant(m.ParticipantID)
	if !ok {
		return ErrParticipantAbsent
	}
	return p.SetDevice(m.Device, m.Enabled)
}

// MessageAppended carries only sender and body; the store stamps the
// sequence number and timestamp at commit time so both always match
// commit order.
type MessageAppended struct {
	SenderID domain.ParticipantID
	Body     string
}

func (m MessageAppended) apply(s *RoomSession, now time.Time) error {
	if _, ok := s.Participant(m.SenderID); !ok {
		return ErrParticipantAbsent
	}
	if m.Body == "" {
		return domain.ErrEmptyMessage
	}
	var seq uint64 = 1
	sentAt := now
	if n := len(s.Messages); n > 0 {
		seq = s.Messages[n-1].Seq + 1
		if sentAt.Before(s.Messages[n-1].SentAt) {
			sentAt = s.Messages[n-1].SentAt
		}
	}
	s.Messages = append(s.Messages, domain.ChatMessage{
		Seq:      seq,
		SenderID: m.SenderID,
		Body:     m.Body,
		SentAt:   sentAt,
	})
	return nil
}

type PhaseChanged struct {
	To Phase
}

func (m PhaseChanged) apply(s *RoomSession, _ time.Time) error {
	if !s.Phase.legalNext(m.To) {
		return errIllegalPhase
	}
	s.Phase = m.To
	return nil
}

type HostTransferred struct {
	FromID domain.ParticipantID
	ToID   domain.ParticipantID
}

func (m HostTransferred) apply(s *RoomSession, _ time.Time) error {
	from, ok := s.Participant(m.FromID)
	if !ok {
		return ErrParticipantAbsent
	}
	to, ok := s.Participant(m.ToID)
	if !ok {
		return ErrParticipantAbsent
	}
	from.Role = domain.RoleAttendee
	to.Role = domain.RoleHost
	return nil
}
