package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/journalpost/internal/models"
	"gorm.io/gorm"
)

// ScheduleStoreImpl implements ScheduleStore over GORM.
type ScheduleStoreImpl struct {
	db *gorm.DB
}

func NewScheduleStore(db *gorm.DB) ScheduleStore {
	return &ScheduleStoreImpl{db: db}
}

func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

func (s *ScheduleStoreImpl) Create(ctx context.Context, sched *models.Schedule) error {
	if err := s.db.WithContext(ctx).Create(sched).Error; err != nil {
		return wrapStoreErr("create schedule", err)
	}
	return nil
}

func (s *ScheduleStoreImpl) Get(ctx context.Context, ownerID, id string) (*models.Schedule, error) {
	var sched models.Schedule
	err := s.db.WithContext(ctx).
		Preload("Recipients", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Preload("Logs", func(db *gorm.DB) *gorm.DB { return db.Order("started_at asc") }).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&sched).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreErr("get schedule", err)
	}
	return &sched, nil
}

func (s *ScheduleStoreImpl) List(ctx context.Context, ownerID string) ([]models.Schedule, error) {
	var scheds []models.Schedule
	err := s.db.WithContext(ctx).
		Preload("Recipients", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Find(&scheds).Error
	if err != nil {
		return nil, wrapStoreErr("list schedules", err)
	}
	return scheds, nil
}

func (s *ScheduleStoreImpl) Update(ctx context.Context, ownerID, id string, upd ScheduleUpdate, now time.Time) (*models.Schedule, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sched models.Schedule
		err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&sched).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return wrapStoreErr("load schedule", err)
		}
		if sched.Executed || sched.Running {
			return ErrAlreadyClaimed
		}

		fields := map[string]interface{}{}
		if upd.Name != nil {
			fields["name"] = *upd.Name
		}
		if upd.DurationMS != nil {
			fields["original_duration_ms"] = *upd.DurationMS
			fields["execution_time"] = now.Add(time.Duration(*upd.DurationMS) * time.Millisecond)
		}
		// A recipients-only edit still takes the guarded update below, so the
		// replacement shares its claim check instead of trusting the read above.
		if upd.Recipients != nil && len(fields) == 0 {
			fields["updated_at"] = now
		}
		if len(fields) > 0 {
			// The executed/running guard repeats inside the UPDATE so an edit
			// cannot race a claim that landed after the read above.
			res := tx.Model(&models.Schedule{}).
				Where("id = ? AND executed = ? AND running = ?", id, false, false).
				Updates(fields)
			if res.Error != nil {
				return wrapStoreErr("update schedule", res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrAlreadyClaimed
			}
		}

		if upd.Recipients != nil {
			if err := tx.Where("schedule_id = ?", id).Delete(&models.Recipient{}).Error; err != nil {
				return wrapStoreErr("replace recipients", err)
			}
			for i := range upd.Recipients {
				upd.Recipients[i].ID = uuid.NewString()
				upd.Recipients[i].ScheduleID = id
				upd.Recipients[i].Position = i
			}
			if err := tx.Create(&upd.Recipients).Error; err != nil {
				return wrapStoreErr("replace recipients", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, ownerID, id)
}

func (s *ScheduleStoreImpl) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	var deferred bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sched models.Schedule
		err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&sched).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return wrapStoreErr("load schedule", err)
		}

		// A running attempt keeps its row until the log is written; flag the
		// row and let MarkExecuted finish the removal.
		if sched.Running {
			deferred = true
			if err := tx.Model(&models.Schedule{}).Where("id = ?", id).
				Update("delete_pending", true).Error; err != nil {
				return wrapStoreErr("defer deletion", err)
			}
			return nil
		}
		return deleteScheduleRows(tx, id)
	})
	if err != nil {
		return false, err
	}
	return deferred, nil
}

func deleteScheduleRows(tx *gorm.DB, id string) error {
	if err := tx.Where("schedule_id = ?", id).Delete(&models.ExecutionLog{}).Error; err != nil {
		return wrapStoreErr("delete logs", err)
	}
	if err := tx.Where("schedule_id = ?", id).Delete(&models.Recipient{}).Error; err != nil {
		return wrapStoreErr("delete recipients", err)
	}
	if err := tx.Where("id = ?", id).Delete(&models.Schedule{}).Error; err != nil {
		return wrapStoreErr("delete schedule", err)
	}
	return nil
}

func (s *ScheduleStoreImpl) ClaimDue(ctx context.Context, now time.Time) (*models.Schedule, error) {
	for {
		var sched models.Schedule
		err := s.db.WithContext(ctx).
			Where("executed = ? AND running = ? AND execution_time <= ?", false, false, now).
			Order("execution_time asc").
			First(&sched).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, wrapStoreErr("find due schedule", err)
		}

		claimed, err := s.tryClaim(ctx, sched.ID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			// Lost the race for this row; the next iteration finds the next candidate.
			continue
		}
		return s.Get(ctx, sched.OwnerID, sched.ID)
	}
}

func (s *ScheduleStoreImpl) Claim(ctx context.Context, ownerID, id string) (*models.Schedule, error) {
	sched, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	claimed, err := s.tryClaim(ctx, sched.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrAlreadyClaimed
	}
	return s.Get(ctx, ownerID, id)
}

// tryClaim is the single conditional update every execution path funnels
// through: it succeeds for exactly one caller per attempt.
func (s *ScheduleStoreImpl) tryClaim(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ? AND executed = ? AND running = ?", id, false, false).
		Update("running", true)
	if res.Error != nil {
		return false, wrapStoreErr("claim schedule", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *ScheduleStoreImpl) Release(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ? AND running = ? AND executed = ?", id, true, false).
		Update("running", false)
	if res.Error != nil {
		return wrapStoreErr("release schedule", res.Error)
	}
	return nil
}

func (s *ScheduleStoreImpl) Reset(ctx context.Context, ownerID, id string, now time.Time) (*models.Schedule, error) {
	sched, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	next := now.Add(time.Duration(sched.OriginalDurationMS) * time.Millisecond)
	// Guarded by running=false so a reset cannot race a trigger that just
	// claimed the row. Resetting an executed schedule re-arms it; its prior
	// logs stay untouched.
	res := s.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ? AND running = ?", id, false).
		Updates(map[string]interface{}{
			"execution_time": next,
			"executed":       false,
			"executed_at":    nil,
		})
	if res.Error != nil {
		return nil, wrapStoreErr("reset schedule", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyClaimed
	}
	return s.Get(ctx, ownerID, id)
}

func (s *ScheduleStoreImpl) AppendLog(ctx context.Context, log *models.ExecutionLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return wrapStoreErr("append log", err)
	}
	return nil
}

func (s *ScheduleStoreImpl) CompleteLog(ctx context.Context, log *models.ExecutionLog) error {
	err := s.db.WithContext(ctx).Model(&models.ExecutionLog{}).
		Where("id = ?", log.ID).
		Updates(map[string]interface{}{
			"status":          log.Status,
			"completed_at":    log.CompletedAt,
			"entry_count":     log.EntryCount,
			"recipients_sent": log.RecipientsSent,
			"error_message":   log.ErrorMessage,
		}).Error
	if err != nil {
		return wrapStoreErr("complete log", err)
	}
	return nil
}

func (s *ScheduleStoreImpl) MarkExecuted(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Schedule{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"executed":    true,
				"executed_at": at,
				"running":     false,
			})
		if res.Error != nil {
			return wrapStoreErr("mark executed", res.Error)
		}

		var sched models.Schedule
		err := tx.Select("id", "delete_pending").Where("id = ?", id).First(&sched).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return wrapStoreErr("mark executed", err)
		}
		if sched.DeletePending {
			return deleteScheduleRows(tx, id)
		}
		return nil
	})
}

func (s *ScheduleStoreImpl) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Schedule{}).
		Where("executed = ?", false).
		Count(&n).Error
	if err != nil {
		return 0, wrapStoreErr("count active schedules", err)
	}
	return n, nil
}
