// Package engine orchestrates one claimed schedule from decryption through
// delivery to its terminal execution log.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/journalpost/internal/crypto"
	"github.com/journalpost/internal/deliver"
	"github.com/journalpost/internal/models"
	"github.com/journalpost/internal/store"
	"go.uber.org/zap"
)

// Renderer turns a list of plaintext entries into a binary document.
type Renderer interface {
	Render(entries []models.Entry) ([]byte, error)
}

// Engine runs claimed schedules to a terminal log state. Every failure mode,
// panics included, ends in a completed failed log; the engine never bubbles
// an error back into the trigger loop.
type Engine struct {
	store           store.ScheduleStore
	renderer        Renderer
	adapters        map[models.Channel]deliver.Adapter
	recipientWindow time.Duration
	logger          *zap.Logger
	now             func() time.Time
}

func New(st store.ScheduleStore, renderer Renderer, adapters []deliver.Adapter, recipientTimeout time.Duration, logger *zap.Logger) *Engine {
	byChannel := make(map[models.Channel]deliver.Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	return &Engine{
		store:           st,
		renderer:        renderer,
		adapters:        byChannel,
		recipientWindow: recipientTimeout,
		logger:          logger,
		now:             time.Now,
	}
}

type attemptResult struct {
	entryCount     int
	recipientsSent int
	errMessage     string
}

// Execute runs one already-claimed schedule. passphrase may be empty for
// automatic triggers, in which case the key material retained at creation
// time is used. The schedule is marked executed whether or not the attempt
// succeeded: a failed decryption consumes the one automatic run.
func (e *Engine) Execute(ctx context.Context, sched *models.Schedule, passphrase string) {
	logRow := &models.ExecutionLog{
		ID:         uuid.NewString(),
		ScheduleID: sched.ID,
		Status:     models.LogStatusRunning,
		StartedAt:  e.now(),
	}
	if err := e.store.AppendLog(ctx, logRow); err != nil {
		e.logger.Error("failed to open execution log",
			zap.String("schedule_id", sched.ID), zap.Error(err))
		// Nothing ran yet; releasing the claim lets the next tick retry.
		e.release(ctx, sched.ID)
		return
	}

	var res attemptResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.errMessage = fmt.Sprintf("execution panicked: %v", r)
				e.logger.Error("execution panicked",
					zap.String("schedule_id", sched.ID), zap.Any("panic", r))
			}
		}()
		res = e.run(ctx, sched, passphrase)
	}()

	// Best-effort delivery policy: any recipient reached counts as success,
	// with recipients_sent recording the partial coverage.
	status := models.LogStatusSuccess
	if res.recipientsSent == 0 {
		status = models.LogStatusFailed
	}

	completed := e.now()
	logRow.Status = status
	logRow.CompletedAt = &completed
	logRow.EntryCount = res.entryCount
	logRow.RecipientsSent = res.recipientsSent
	logRow.ErrorMessage = res.errMessage

	if err := e.store.CompleteLog(ctx, logRow); err != nil {
		e.logger.Error("failed to complete execution log",
			zap.String("schedule_id", sched.ID), zap.Error(err))
	}
	if err := e.store.MarkExecuted(ctx, sched.ID, completed); err != nil {
		e.logger.Error("failed to mark schedule executed",
			zap.String("schedule_id", sched.ID), zap.Error(err))
		// Leave the row claimable rather than wedged running; a later tick
		// may replay the attempt.
		e.release(ctx, sched.ID)
	}

	e.logger.Info("execution finished",
		zap.String("schedule_id", sched.ID),
		zap.String("status", string(status)),
		zap.Int("entry_count", res.entryCount),
		zap.Int("recipients_sent", res.recipientsSent))
}

func (e *Engine) release(ctx context.Context, id string) {
	if err := e.store.Release(ctx, id); err != nil {
		e.logger.Error("failed to release claim",
			zap.String("schedule_id", id), zap.Error(err))
	}
}

func (e *Engine) run(ctx context.Context, sched *models.Schedule, passphrase string) attemptResult {
	entries, err := e.decrypt(sched, passphrase)
	if err != nil {
		return attemptResult{errMessage: err.Error()}
	}

	selected := sched.FilterEntries(entries)
	if len(selected) == 0 {
		// Validated non-empty at creation; an empty selection here means the
		// snapshot drifted from the selection.
		return attemptResult{errMessage: "no entries matched the selection"}
	}

	document, err := e.renderer.Render(selected)
	if err != nil {
		return attemptResult{entryCount: len(selected), errMessage: err.Error()}
	}

	sent, deliveryErr := e.deliverAll(ctx, sched, document, len(selected))
	res := attemptResult{entryCount: len(selected), recipientsSent: sent}
	if deliveryErr != "" {
		res.errMessage = deliveryErr
	}
	return res
}

func (e *Engine) decrypt(sched *models.Schedule, passphrase string) ([]models.Entry, error) {
	env := &crypto.Envelope{
		Salt:       sched.Salt,
		Nonce:      sched.Nonce,
		Ciphertext: sched.Ciphertext,
	}

	var plaintext []byte
	var err error
	if passphrase != "" {
		plaintext, err = crypto.Decrypt(env, passphrase)
	} else {
		plaintext, err = crypto.DecryptWithKey(env, sched.DerivedKey)
	}
	if err != nil {
		return nil, err
	}

	var entries []models.Entry
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, fmt.Errorf("snapshot is not a valid entry list: %w", err)
	}
	return entries, nil
}

// deliverAll fans out to every recipient, best effort. A failure on one
// recipient never aborts delivery to the others; the first error message is
// kept for the log.
func (e *Engine) deliverAll(ctx context.Context, sched *models.Schedule, document []byte, entryCount int) (int, string) {
	meta := deliver.Metadata{
		ScheduleName: sched.Name,
		EntryCount:   entryCount,
		ExportedAt:   e.now(),
		Filename:     fmt.Sprintf("journal-export-%s.pdf", e.now().Format("2006-01-02")),
	}

	sent := 0
	firstErr := ""
	for _, rcpt := range sched.Recipients {
		adapter, ok := e.adapters[rcpt.Channel]
		if !ok {
			e.logger.Warn("no adapter for channel",
				zap.String("schedule_id", sched.ID), zap.String("channel", string(rcpt.Channel)))
			if firstErr == "" {
				firstErr = fmt.Sprintf("no delivery adapter for channel %q", rcpt.Channel)
			}
			continue
		}

		rctx, cancel := context.WithTimeout(ctx, e.recipientWindow)
		err := adapter.Deliver(rctx, rcpt, document, meta)
		cancel()
		if err != nil {
			e.logger.Warn("delivery failed",
				zap.String("schedule_id", sched.ID),
				zap.String("channel", string(rcpt.Channel)),
				zap.String("address", rcpt.Address),
				zap.Error(err))
			if firstErr == "" {
				firstErr = err.Error()
			}
			continue
		}
		sent++
	}
	return sent, firstErr
}
