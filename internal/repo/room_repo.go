// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for rooms and
// room membership.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/uplift-app/go-support-backend/internal/domain"
)

// CreateRoom inserts a room row.
func CreateRoom(ctx context.Context, db *gorm.DB, name string, private bool) (*domain.Room, error) {
	r := &domain.Room{
		ID:        uuid.NewString(),
		Name:      name,
		Private:   private,
		CreatedAt: time.Now().UTC(),
	}
	return r, db.WithContext(ctx).Create(r).Error
}

// GetRoom fetches a room by ID or returns ErrNotFound.
func GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error) {
	var r domain.Room
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// AddRoomMember grants userID access to a private room. Inserting an
// existing membership is a no-op rather than an error.
func AddRoomMember(ctx context.Context, db *gorm.DB, roomID, userID string) error {
	m := &domain.RoomMember{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).Create(m).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

// IsRoomMember reports whether userID has a membership row for the room.
func IsRoomMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	return n > 0, err
}
