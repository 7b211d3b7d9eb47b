package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/journalpost/internal/auth"
	"github.com/journalpost/internal/crypto"
	"github.com/journalpost/internal/models"
	"github.com/journalpost/internal/store"
	"go.uber.org/zap"
)

type selectionRequest struct {
	Type  string     `json:"type" binding:"required,oneof=all specific date_range"`
	IDs   []string   `json:"ids"`
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

type recipientRequest struct {
	Channel string `json:"channel" binding:"required,oneof=email sms"`
	Address string `json:"address" binding:"required"`
}

type createScheduleRequest struct {
	Name           string             `json:"name" binding:"required"`
	DelayMS        int64              `json:"delay_ms" binding:"required"`
	EntrySelection selectionRequest   `json:"entry_selection" binding:"required"`
	EntriesData    []models.Entry     `json:"entries_data" binding:"required"`
	Passphrase     string             `json:"passphrase" binding:"required"`
	Recipients     []recipientRequest `json:"recipients" binding:"required,min=1,dive"`
}

type updateScheduleRequest struct {
	Name       *string            `json:"name"`
	DelayMS    *int64             `json:"delay_ms"`
	Recipients []recipientRequest `json:"recipients" binding:"omitempty,min=1,dive"`
}

type executeRequest struct {
	Passphrase string `json:"passphrase"`
}

func (sel selectionRequest) validate() error {
	switch models.SelectionType(sel.Type) {
	case models.SelectionSpecific:
		if len(sel.IDs) == 0 {
			return fmt.Errorf("selection type %q requires ids", sel.Type)
		}
	case models.SelectionDateRange:
		if sel.Start == nil || sel.End == nil {
			return fmt.Errorf("selection type %q requires start and end", sel.Type)
		}
		if sel.End.Before(*sel.Start) {
			return fmt.Errorf("selection end precedes start")
		}
	}
	return nil
}

func (s *Server) createSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DelayMS <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delay_ms must be positive"})
		return
	}
	if err := req.EntrySelection.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	sched := &models.Schedule{
		ID:                 uuid.NewString(),
		OwnerID:            auth.OwnerID(c),
		Name:               req.Name,
		ExecutionTime:      now.Add(time.Duration(req.DelayMS) * time.Millisecond),
		OriginalDurationMS: req.DelayMS,
		SelectionType:      models.SelectionType(req.EntrySelection.Type),
		SelectionIDs:       models.StringList(req.EntrySelection.IDs),
		SelectionStart:     req.EntrySelection.Start,
		SelectionEnd:       req.EntrySelection.End,
	}

	// No point scheduling an empty export: the selection must match at least
	// one entry of the snapshot being sealed.
	matched := sched.FilterEntries(req.EntriesData)
	if len(matched) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no entries match the selection"})
		return
	}
	sched.EntryCount = len(matched)

	snapshot, err := json.Marshal(req.EntriesData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entries_data"})
		return
	}
	env, key, err := crypto.Encrypt(snapshot, req.Passphrase)
	if err != nil {
		s.logger.Error("failed to seal snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encrypt snapshot"})
		return
	}
	sched.Ciphertext = env.Ciphertext
	sched.Nonce = env.Nonce
	sched.Salt = env.Salt
	sched.DerivedKey = key

	for i, r := range req.Recipients {
		sched.Recipients = append(sched.Recipients, models.Recipient{
			ID:         uuid.NewString(),
			ScheduleID: sched.ID,
			Channel:    models.Channel(r.Channel),
			Address:    r.Address,
			Position:   i,
		})
	}

	if err := s.store.Create(c.Request.Context(), sched); err != nil {
		s.respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, sched)
}

func (s *Server) listSchedules(c *gin.Context) {
	scheds, err := s.store.List(c.Request.Context(), auth.OwnerID(c))
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, scheds)
}

func (s *Server) getSchedule(c *gin.Context) {
	sched, err := s.store.Get(c.Request.Context(), auth.OwnerID(c), c.Param("id"))
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *Server) updateSchedule(c *gin.Context) {
	var req updateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DelayMS != nil && *req.DelayMS <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delay_ms must be positive"})
		return
	}

	upd := store.ScheduleUpdate{Name: req.Name, DurationMS: req.DelayMS}
	for i, r := range req.Recipients {
		upd.Recipients = append(upd.Recipients, models.Recipient{
			Channel:  models.Channel(r.Channel),
			Address:  r.Address,
			Position: i,
		})
	}

	sched, err := s.store.Update(c.Request.Context(), auth.OwnerID(c), c.Param("id"), upd, time.Now())
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *Server) deleteSchedule(c *gin.Context) {
	deferred, err := s.store.Delete(c.Request.Context(), auth.OwnerID(c), c.Param("id"))
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	if deferred {
		c.JSON(http.StatusAccepted, gin.H{"message": "deletion deferred until the running attempt completes"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) executeSchedule(c *gin.Context) {
	var req executeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// Claiming here shares the store's single conditional update with the
	// trigger loop, so a concurrent automatic trigger cannot double-run.
	sched, err := s.store.Claim(c.Request.Context(), auth.OwnerID(c), c.Param("id"))
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}

	go s.engine.Execute(context.WithoutCancel(c.Request.Context()), sched, req.Passphrase)

	c.JSON(http.StatusAccepted, gin.H{
		"message":     "execution started",
		"schedule_id": sched.ID,
	})
}

func (s *Server) resetSchedule(c *gin.Context) {
	sched, err := s.store.Reset(c.Request.Context(), auth.OwnerID(c), c.Param("id"), time.Now())
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}
