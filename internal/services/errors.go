// Package services defines the business logic for chat orchestration,
// context building, bookings, and history reconstruction. The chat-facing
// flows degrade to user-facing strings instead of surfacing errors, so only
// the knowledge ingestion path exposes a sentinel for callers to branch on.
package services

import "errors"

// ErrEmptyFilePath is returned when a knowledge upload names no file.
var ErrEmptyFilePath = errors.New("file path is empty")
