package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

type recordingHandlers struct {
	Store core.SessionStore
	Sink  core.RecordingSink
}

func (h *recordingHandlers) getSession(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no session store configured"})
		return
	}
	s, err := h.Store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

// upload accepts the assembled recording artifact for a session, any
// time after session end. The first upload per (session, user) wins;
// repeats are acknowledged without a second write.
func (h *recordingHandlers) upload(c *gin.Context) {
	if h.Sink == nil || h.Store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "recording storage not configured"})
		return
	}

	sessionID := c.Param("id")
	userID := domain.UserID(c.GetString("user_id"))

	fh, err := c.FormFile("recording")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing recording file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable recording file"})
		return
	}
	defer f.Close()

	url, err := h.Sink.Store(c.Request.Context(), sessionID, userID, f, fh.Size)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").
			Str("session", sessionID).
			Msg("recording sink store")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recording upload failed"})
		return
	}

	rec := &domain.Recording{
		SessionID: sessionID,
		UserID:    userID,
		URL:       url,
		SizeBytes: fh.Size,
		CreatedAt: time.Now(),
	}
	if err := h.Store.SaveRecording(c.Request.Context(), rec); err != nil {
		// The artifact is durable; only the reference write failed.
		log.Error().Err(err).Str("module", "adapters.http").
			Str("session", sessionID).
			Msg("save recording reference")
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}
