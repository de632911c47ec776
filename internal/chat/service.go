package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/uplift-app/go-support-backend/internal/domain"
	"github.com/uplift-app/go-support-backend/internal/repo"
)

// MessageRepo defines the repository contract required by Service.
// Implementations are responsible for persistence of messages, rooms, and
// membership.
type MessageRepo interface {
	// CreateMessage inserts a message row and assigns its durable id.
	CreateMessage(ctx context.Context, db *gorm.DB, roomID, userID, username, content, clientMessageID string) (*domain.ChatMessage, error)

	// ListRecentMessages returns up to limit messages, newest first.
	ListRecentMessages(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.ChatMessage, error)

	// ListMessagesPage returns a page of messages, oldest first.
	ListMessagesPage(ctx context.Context, db *gorm.DB, roomID string, offset, limit int) ([]domain.ChatMessage, error)

	// CountMessages returns the room's message total for pagination.
	CountMessages(ctx context.Context, db *gorm.DB, roomID string) (int64, error)

	// GetRoom fetches a room by id or repo.ErrNotFound.
	GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error)

	// IsRoomMember reports whether the user holds a membership row.
	IsRoomMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error)

	// AnonymizeUserMessages / RestoreUserMessages implement the reversible
	// account-deletion side effect.
	AnonymizeUserMessages(ctx context.Context, db *gorm.DB, userID string) (int64, error)
	RestoreUserMessages(ctx context.Context, db *gorm.DB, userID string) (int64, error)
}

// repoShim adapts the repository free functions to the MessageRepo interface,
// keeping the service decoupled from the concrete repo package.
type repoShim struct{}

func (repoShim) CreateMessage(ctx context.Context, db *gorm.DB, roomID, userID, username, content, clientMessageID string) (*domain.ChatMessage, error) {
	return repo.CreateMessage(ctx, db, roomID, userID, username, content, clientMessageID)
}

func (repoShim) ListRecentMessages(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.ChatMessage, error) {
	return repo.ListRecentMessages(ctx, db, roomID, limit)
}

func (repoShim) ListMessagesPage(ctx context.Context, db *gorm.DB, roomID string, offset, limit int) ([]domain.ChatMessage, error) {
	return repo.ListMessagesPage(ctx, db, roomID, offset, limit)
}

func (repoShim) CountMessages(ctx context.Context, db *gorm.DB, roomID string) (int64, error) {
	return repo.CountMessages(ctx, db, roomID)
}

func (repoShim) GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error) {
	return repo.GetRoom(ctx, db, id)
}

func (repoShim) IsRoomMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	return repo.IsRoomMember(ctx, db, roomID, userID)
}

func (repoShim) AnonymizeUserMessages(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.AnonymizeUserMessages(ctx, db, userID)
}

func (repoShim) RestoreUserMessages(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.RestoreUserMessages(ctx, db, userID)
}

// Service provides room and message operations for the gateway and the saga
// subscribers. It validates content, enforces the room access policy, and
// coordinates repository operations.
type Service struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the message repository used by this service.
	Repo MessageRepo

	// MaxMessageLen caps message content by rune length after NFC
	// normalization.
	MaxMessageLen int
	// HistoryLimit bounds the history replayed to a joining connection.
	HistoryLimit int
}

// NewService constructs a Service bound to db with the given limits.
func NewService(db *gorm.DB, maxMessageLen, historyLimit int) *Service {
	return &Service{
		DB:            db,
		Repo:          repoShim{},
		MaxMessageLen: maxMessageLen,
		HistoryLimit:  historyLimit,
	}
}

// CanAccessRoom applies the room access policy: the room must exist, and
// private rooms additionally require a membership row. A missing room is
// ErrRoomNotFound; a rights failure is ErrRoomAccessDenied, which transports
// must surface distinctly from authentication failures.
func (s *Service) CanAccessRoom(ctx context.Context, userID, roomID string) error {
	room, err := s.Repo.GetRoom(ctx, s.DB, roomID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	if !room.Private {
		return nil
	}
	member, err := s.Repo.IsRoomMember(ctx, s.DB, roomID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrRoomAccessDenied
	}
	return nil
}

// ValidateContent normalizes and bounds message content. Returns the
// normalized content, or ErrEmptyMessage / ErrMessageTooLong.
func (s *Service) ValidateContent(content string) (string, error) {
	content = norm.NFC.String(strings.TrimSpace(content))
	if content == "" {
		return "", ErrEmptyMessage
	}
	if s.MaxMessageLen > 0 && utf8.RuneCountInString(content) > s.MaxMessageLen {
		return "", ErrMessageTooLong
	}
	return content, nil
}

// Record persists an accepted message and returns the stored row. When the
// write fails, the error is returned together with a fully populated
// in-memory message carrying a fallback id, so the caller can proceed with
// the live broadcast regardless.
func (s *Service) Record(ctx context.Context, roomID, userID, username, content, clientMessageID string) (*domain.ChatMessage, error) {
	m, err := s.Repo.CreateMessage(ctx, s.DB, roomID, userID, username, content, clientMessageID)
	if err == nil {
		return m, nil
	}
	log.Error().Err(err).
		Str("room_id", roomID).
		Str("user_id", userID).
		Msg("message persistence failed; broadcasting with fallback id")
	return &domain.ChatMessage{
		ID:              uuid.NewString(),
		RoomID:          roomID,
		UserID:          userID,
		Username:        username,
		Content:         content,
		ClientMessageID: clientMessageID,
		CreatedAt:       time.Now().UTC(),
	}, err
}

// History returns the most recent messages of a room in oldest-first order
// for display: fetched newest-first, bounded, then reversed.
func (s *Service) History(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	msgs, err := s.Repo.ListRecentMessages(ctx, s.DB, roomID, s.HistoryLimit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// HistoryPage returns a page of a room's messages plus the total count,
// after verifying the caller may access the room.
func (s *Service) HistoryPage(ctx context.Context, userID, roomID string, page, pageSize int) ([]domain.ChatMessage, int64, error) {
	if err := s.CanAccessRoom(ctx, userID, roomID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	total, err := s.Repo.CountMessages(ctx, s.DB, roomID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatMessage{}, 0, nil
	}
	items, err := s.Repo.ListMessagesPage(ctx, s.DB, roomID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Anonymize replaces the user's display name across their messages and
// returns the number of affected rows. Idempotent under repetition.
func (s *Service) Anonymize(ctx context.Context, userID string) (int64, error) {
	return s.Repo.AnonymizeUserMessages(ctx, s.DB, userID)
}

// Restore reverses a prior anonymization for the user. Idempotent under
// repetition.
func (s *Service) Restore(ctx context.Context, userID string) (int64, error) {
	return s.Repo.RestoreUserMessages(ctx, s.DB, userID)
}
