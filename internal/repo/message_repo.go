// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatMessage model, including the anonymize/restore pair used by the
// account-deletion saga.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/uplift-app/go-support-backend/internal/domain"
)

// CreateMessage inserts a new chat message row. The id is assigned here;
// callers that broadcast before persisting must generate their own fallback id.
func CreateMessage(ctx context.Context, db *gorm.DB, roomID, userID, username, content, clientMessageID string) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		ID:              uuid.NewString(),
		RoomID:          roomID,
		UserID:          userID,
		Username:        username,
		Content:         content,
		ClientMessageID: clientMessageID,
		CreatedAt:       time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// ListRecentMessages returns up to limit messages for a room, newest first.
// Callers reverse the slice for oldest-first display.
func ListRecentMessages(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	q := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, roomID string, offset, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, roomID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM chat_messages WHERE room_id = ? AND deleted_at IS NULL", roomID).
		Scan(&total).Error
	return total, err
}

// AnonymizeUserMessages moves the display name of every not-yet-anonymized
// message of the user into original_username and writes the placeholder over
// it, returning the number of affected rows. The user id column is untouched.
// Running it twice for the same user affects zero rows the second time.
func AnonymizeUserMessages(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("user_id = ? AND anonymized = ?", userID, false).
		Updates(map[string]any{
			"original_username": gorm.Expr("username"),
			"username":          domain.AnonymizedName,
			"anonymized":        true,
		})
	return res.RowsAffected, res.Error
}

// RestoreUserMessages reverses a prior anonymization, writing the retained
// original name back over the placeholder. Idempotent: already-restored rows
// are not matched.
func RestoreUserMessages(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("user_id = ? AND anonymized = ?", userID, true).
		Updates(map[string]any{
			"username":          gorm.Expr("original_username"),
			"original_username": "",
			"anonymized":        false,
		})
	return res.RowsAffected, res.Error
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
