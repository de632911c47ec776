// Package chat defines the business logic around rooms and messages consumed
// by the real-time gateway and the account-deletion saga. This file
// centralizes service-level error values so they can be consistently
// returned by service methods and checked by callers with errors.Is.
//
// Translation into user-facing events or HTTP status codes is performed at
// the transport layer, never here.
package chat

import "errors"

var (
	// ErrRoomNotFound indicates the room id does not resolve to a live room.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomAccessDenied indicates a valid identity lacking rights for the
	// room. Deliberately distinct from authentication failures.
	ErrRoomAccessDenied = errors.New("room access denied")

	// ErrEmptyMessage indicates message content was empty after trimming.
	ErrEmptyMessage = errors.New("empty message")

	// ErrMessageTooLong indicates content exceeded the configured rune cap.
	ErrMessageTooLong = errors.New("message too long")
)
