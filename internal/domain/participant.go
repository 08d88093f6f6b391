// Package domain contains entities without logic, just meta-data and
// construction rules.
package domain

import (
	"time"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

type ParticipantID string

type Role string

const (
	RoleHost     Role = "host"
	RoleAttendee Role = "attendee"
)

// Device names a toggleable media control on a participant.
type Device string

const (
	DeviceVideo  Device = "video"
	DeviceAudio  Device = "audio"
	DeviceScreen Device = "screen"
)

type Participant struct {
	ID            ParticipantID `json:"id"`
	DisplayName   string        `json:"displayName"`
	Role          Role          `json:"role"`
	VideoEnabled  bool          `json:"videoEnabled"`
	AudioEnabled  bool          `json:"audioEnabled"`
	ScreenSharing bool          `json:"screenSharing"`

	// JoinedAt is stamped once at creation and travels with the
	// participant through every roster copy, so all sessions share one
	// ordering for seniority decisions like host promotion.
	JoinedAt time.Time `json:"joinedAt"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in
// adapters. Video and audio start enabled, screen share off.
func NewParticipant(displayName string, role Role) (*Participant, error) {
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Participant{
		ID:           ParticipantID(uuid.NewString()),
		DisplayName:  displayName,
		Role:         role,
		VideoEnabled: true,
		AudioEnabled: true,
		JoinedAt:     time.Now(),
	}, nil
}

// EarliestJoined returns the longest-present participant, ties broken by
// id so every roster copy picks the same one. Nil for an empty slice.
func EarliestJoined(ps []*Participant) *Participant {
	var best *Participant
	for _, p := range ps {
		if best == nil ||
			p.JoinedAt.Before(best.JoinedAt) ||
			(p.JoinedAt.Equal(best.JoinedAt) && p.ID < best.ID) {
			best = p
		}
	}
	return best
}

// DeviceEnabled reports the current state of one device toggle.
func (p *Participant) DeviceEnabled(d Device) (bool, error) {
	switch d {
	case DeviceVideo:
		return p.VideoEnabled, nil
	case DeviceAudio:
		return p.AudioEnabled, nil
	case DeviceScreen:
		return p.ScreenSharing, nil
	}
	return false, ErrUnknownDevice
}

func (p *Participant) SetDevice(d Device, enabled bool) error {
	switch d {
	case DeviceVideo:
		p.VideoEnabled = enabled
	case DeviceAudio:
		p.AudioEnabled = enabled
	case DeviceScreen:
		p.ScreenSharing = enabled
	default:
		return ErrUnknownDevice
	}
	return nil
}

// Clone returns an independent copy so snapshots never alias live state.
func (p *Participant) Clone() *Participant {
	cp := *p
	return &cp
}
