// Package deliver sends a rendered document to recipients. Each channel is
// one adapter behind a single interface; adapters fail independently so one
// unreachable endpoint never aborts delivery to the others.
package deliver

import (
	"context"
	"time"

	"github.com/journalpost/internal/models"
)

// Metadata describes the export a document came from, for subject lines and
// notice text.
type Metadata struct {
	ScheduleName string
	EntryCount   int
	ExportedAt   time.Time
	Filename     string
}

// Adapter delivers one document to one recipient. Implementations must
// respect ctx cancellation so a per-recipient timeout converts a hang into an
// error for that recipient only.
type Adapter interface {
	Channel() models.Channel
	Deliver(ctx context.Context, rcpt models.Recipient, document []byte, meta Metadata) error
}
