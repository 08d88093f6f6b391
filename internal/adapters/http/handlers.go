package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Gather/internal/adapters/directory"
	"github.com/dkeye/Gather/internal/domain"
)

type MeetingHandler struct {
	Directory *directory.InMemory
}

type instantRequest struct {
	Title string `json:"title"`
}

type scheduleRequest struct {
	Title           string    `json:"title" binding:"required"`
	StartsAt        time.Time `json:"startsAt" binding:"required"`
	DurationMinutes int       `json:"durationMinutes"`
	Invited         []string  `json:"invited"`
}

type meetingResponse struct {
	ID        domain.RoomID `json:"id"`
	Title     string        `json:"title"`
	Instant   bool          `json:"instant"`
	StartsAt  time.Time     `json:"startsAt"`
	DurationM int           `json:"durationMinutes"`
	Invited   []string      `json:"invited,omitempty"`
	Occupancy int           `json:"occupancy"`
}

func (h *MeetingHandler) toResponse(m *domain.Meeting) meetingResponse {
	return meetingResponse{
		ID:        m.ID,
		Title:     m.Title,
		Instant:   m.Instant,
		StartsAt:  m.StartsAt,
		DurationM: int(m.Duration / time.Minute),
		Invited:   m.Invited,
		Occupancy: h.Directory.Occupancy(m.ID),
	}
}

func (h *MeetingHandler) listMeetings(c *gin.Context) {
	meetings := h.Directory.List()
	out := make([]meetingResponse, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, h.toResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"meetings": out})
}

func (h *MeetingHandler) createInstant(c *gin.Context) {
	var req instantRequest
	_ = c.ShouldBindJSON(&req) // title is optional

	m := h.Directory.CreateInstant(req.Title)
	c.JSON(http.StatusCreated, h.toResponse(m))
}

func (h *MeetingHandler) scheduleMeeting(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields"})
		return
	}

	m, err := h.Directory.Schedule(req.Title, req.StartsAt, time.Duration(req.DurationMinutes)*time.Minute, req.Invited)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, h.toResponse(m))
}

func (h *MeetingHandler) cancelMeeting(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	if err := h.Directory.Cancel(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
