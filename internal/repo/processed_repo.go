// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// ProcessedEvent model, the idempotency barrier for saga subscribers under
// at-least-once delivery.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/uplift-app/go-support-backend/internal/domain"
)

// ErrDuplicate indicates a processed-event record already exists for the
// given event id, i.e. the event was handled before.
var ErrDuplicate = errors.New("duplicate")

// IsEventProcessed reports whether eventID has already been fully handled.
func IsEventProcessed(ctx context.Context, db *gorm.DB, eventID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&n).Error
	return n > 0, err
}

// MarkEventProcessed records eventID as handled. Returns ErrDuplicate when a
// concurrent delivery won the race, so callers can ack without re-running
// side effects.
func MarkEventProcessed(ctx context.Context, db *gorm.DB, eventID, eventType, correlationID string) error {
	rec := &domain.ProcessedEvent{
		EventID:       eventID,
		EventType:     eventType,
		CorrelationID: correlationID,
		ProcessedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UnmarkEventProcessed removes the idempotency mark so a redelivery can
// actually retry after a failed handling attempt.
func UnmarkEventProcessed(ctx context.Context, db *gorm.DB, eventID string) error {
	return db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&domain.ProcessedEvent{}).Error
}

// isUniqueViolation detects unique-constraint failures across the error
// shapes GORM and glebarez/sqlite produce.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
