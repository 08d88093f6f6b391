package domain

import (
	"time"

	"github.com/google/uuid"
)

const MaxMeetingTitleLen = 120

// Meeting is directory meta-data for a room that can be resolved and
// joined. Instant meetings have no schedule and are joinable immediately;
// scheduled ones only within a window around StartsAt.
type Meeting struct {
	ID        RoomID        `json:"id"`
	Title     string        `json:"title"`
	Instant   bool          `json:"instant"`
	StartsAt  time.Time     `json:"startsAt"`
	Duration  time.Duration `json:"duration"`
	Invited   []string      `json:"invited,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

func NewInstantMeeting(title string, now time.Time) *Meeting {
	if title == "" {
		title = "Instant Meeting"
	}
	return &Meeting{
		ID:        RoomID(uuid.NewString()),
		Title:     title,
		Instant:   true,
		StartsAt:  now,
		CreatedAt: now,
	}
}

func NewScheduledMeeting(title string, startsAt time.Time, duration time.Duration, invited []string, now time.Time) (*Meeting, error) {
	if len(title) == 0 {
		return nil, ErrTitleEmpty
	}
	if len(title) > MaxMeetingTitleLen {
		return nil, ErrTitleTooLong
	}
	if startsAt.Before(now) {
		return nil, ErrStartInPast
	}
	return &Meeting{
		ID:        RoomID(uuid.NewString()),
		Title:     title,
		StartsAt:  startsAt,
		Duration:  duration,
		Invited:   invited,
		CreatedAt: now,
	}, nil
}
