// Package domain defines the persistence models for rooms, chat messages,
// and processed saga events. These types are mapped with GORM and form the
// core data layer shared by the real-time gateway and the saga subscribers.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// AnonymizedName is the placeholder display name written over a deleted
// user's messages. The original user id is retained on the row so the
// operation stays reversible.
const AnonymizedName = "Deleted User"

// Room represents a chat room. Private rooms admit only listed members;
// public rooms admit any authenticated user.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: human-readable room name, unique.
//   - Private: when true, access requires a RoomMember row.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (rooms are retired, never erased).
type Room struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string         `json:"name"       gorm:"type:varchar(128);not null;uniqueIndex"`
	Private   bool           `json:"private"    gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// RoomMember grants a user access to a private room. Public rooms need no
// membership rows.
type RoomMember struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	RoomID    string    `json:"room_id" gorm:"type:char(36);not null;uniqueIndex:ux_room_member,priority:1"`
	UserID    string    `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_room_member,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for RoomMember.
func (RoomMember) TableName() string { return "room_members" }

// ChatMessage represents a single message accepted by the real-time gateway.
// Messages are append-only; moderation removes them logically via DeletedAt.
//
// Fields:
//   - ID: UUID primary key assigned at persistence time; broadcasts that
//     outrun a failed write carry a fallback id instead.
//   - RoomID: owning room (indexed with CreatedAt for history reads).
//   - UserID / Username: sender identity captured at send time. Anonymization
//     moves Username into OriginalUsername and writes the placeholder, so the
//     operation is reversible without consulting another service.
//   - ClientMessageID: optional client-supplied correlation id echoed back in
//     the sender's delivery acknowledgment.
//   - Anonymized: set by the account-deletion saga; guards restore.
type ChatMessage struct {
	ID              string         `json:"id"                          gorm:"type:char(36);primaryKey"`
	RoomID          string         `json:"room_id"                     gorm:"type:char(36);not null;index:idx_room_msgs,priority:1"`
	UserID          string         `json:"user_id"                     gorm:"type:varchar(64);not null;index"`
	Username        string         `json:"username"                    gorm:"type:varchar(64);not null"`
	OriginalUsername string        `json:"-"                           gorm:"type:varchar(64)"`
	Content         string         `json:"content"                     gorm:"type:text;not null"`
	ClientMessageID string         `json:"client_message_id,omitempty" gorm:"type:varchar(64)"`
	Anonymized      bool           `json:"-"                           gorm:"not null;default:false"`
	CreatedAt       time.Time      `json:"created_at"                  gorm:"index:idx_room_msgs,priority:2"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                           gorm:"index"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// ProcessedEvent records a saga event this service has fully handled, keyed
// by the event's globally unique id. It is the idempotency barrier that makes
// at-least-once delivery safe: a redelivered event whose id is already here
// is acknowledged without re-running side effects.
type ProcessedEvent struct {
	EventID       string    `gorm:"type:char(36);primaryKey"`
	EventType     string    `gorm:"type:varchar(64);not null;index"`
	CorrelationID string    `gorm:"type:varchar(64);not null"`
	ProcessedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (ProcessedEvent) TableName() string { return "processed_events" }
