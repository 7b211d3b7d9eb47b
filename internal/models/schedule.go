package models

import (
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type SelectionType string

const (
	SelectionAll       SelectionType = "all"
	SelectionSpecific  SelectionType = "specific"
	SelectionDateRange SelectionType = "date_range"
)

type LogStatus string

const (
	LogStatusRunning LogStatus = "running"
	LogStatusSuccess LogStatus = "success"
	LogStatusFailed  LogStatus = "failed"
)

// Schedule is a one-shot, time-delayed export job owned by a single API key.
// The entry snapshot taken at creation time is held as an AES-GCM envelope
// (Ciphertext/Nonce/Salt); DerivedKey retains the PBKDF2-derived key so the
// trigger loop can decrypt without the passphrase being present.
type Schedule struct {
	ID                 string    `gorm:"primaryKey" json:"id"`
	OwnerID            string    `gorm:"index;not null" json:"-"`
	Name               string    `gorm:"not null" json:"name"`
	ExecutionTime      time.Time `gorm:"index" json:"execution_time"`
	OriginalDurationMS int64     `json:"original_duration_ms"`

	SelectionType  SelectionType `gorm:"not null" json:"selection_type"`
	SelectionIDs   StringList    `gorm:"type:json" json:"selection_ids,omitempty"`
	SelectionStart *time.Time    `json:"selection_start,omitempty"`
	SelectionEnd   *time.Time    `json:"selection_end,omitempty"`

	Ciphertext []byte `json:"-"`
	Nonce      []byte `json:"-"`
	Salt       []byte `json:"-"`
	DerivedKey []byte `json:"-"`

	EntryCount int         `json:"entry_count"`
	Recipients []Recipient `gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE" json:"recipients"`

	Running       bool       `gorm:"default:false" json:"-"`
	Executed      bool       `gorm:"default:false;index" json:"executed"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
	DeletePending bool       `gorm:"default:false" json:"-"`

	Logs []ExecutionLog `gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE" json:"logs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recipient is a single delivery target of a schedule.
type Recipient struct {
	ID         string  `gorm:"primaryKey" json:"id"`
	ScheduleID string  `gorm:"index;not null" json:"-"`
	Channel    Channel `gorm:"not null" json:"channel"`
	Address    string  `gorm:"not null" json:"address"`
	Position   int     `json:"-"`
}

// ExecutionLog records one attempt at running a schedule. Rows are append-only;
// a row created as running is completed exactly once with a terminal status.
type ExecutionLog struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	ScheduleID     string     `gorm:"index;not null" json:"-"`
	Status         LogStatus  `gorm:"not null" json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	EntryCount     int        `json:"entry_count"`
	RecipientsSent int        `json:"recipients_sent"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"-"`
}

// FilterEntries applies the schedule's entry selection to a decrypted snapshot.
// Date ranges are inclusive on both ends.
func (s *Schedule) FilterEntries(entries []Entry) []Entry {
	switch s.SelectionType {
	case SelectionSpecific:
		wanted := make(map[string]bool, len(s.SelectionIDs))
		for _, id := range s.SelectionIDs {
			wanted[id] = true
		}
		var out []Entry
		for _, e := range entries {
			if wanted[e.ID] {
				out = append(out, e)
			}
		}
		return out
	case SelectionDateRange:
		var out []Entry
		for _, e := range entries {
			if s.SelectionStart != nil && e.CreatedAt.Before(*s.SelectionStart) {
				continue
			}
			if s.SelectionEnd != nil && e.CreatedAt.After(*s.SelectionEnd) {
				continue
			}
			out = append(out, e)
		}
		return out
	default:
		return entries
	}
}
