// Package services – HistoryService
//
// This file reconstructs a conversation transcript from the hosted chat
// table. The table is append-only and shared across all sessions, so the
// reconstructor pages through its rows, keeps the ones whose Session ID
// matches, and splits each row into its user and assistant turns.
//
// Like the rest of the chat flow, failures degrade: a fetch error produces a
// single synthetic assistant turn carrying the diagnostic instead of an
// error, so the UI always has something to render.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/caredesk/clinic-assistant/internal/domain"
	"github.com/caredesk/clinic-assistant/internal/jamai"
)

// History paging defaults. The page ceiling bounds a full reconstruction at
// 3000 rows.
const (
	DefaultHistoryPageSize = 100
	DefaultHistoryMaxPages = 30
)

// unknownTimestamp is used when a row carries neither an updated-at nor a
// created-at value.
const unknownTimestamp = "Unknown Time"

// HistoryTable is the slice of the hosted table client history needs.
type HistoryTable interface {
	ListRows(ctx context.Context, tableID string, limit, offset int) ([]jamai.Row, error)
}

// HistoryService rebuilds per-session transcripts from the chat table.
type HistoryService struct {
	Table   HistoryTable
	TableID string

	// PageSize and MaxPages bound the listing walk; zero values take the
	// package defaults.
	PageSize int
	MaxPages int
}

// NewHistoryService constructs a HistoryService with default paging bounds.
func NewHistoryService(table HistoryTable, tableID string) *HistoryService {
	return &HistoryService{
		Table:    table,
		TableID:  tableID,
		PageSize: DefaultHistoryPageSize,
		MaxPages: DefaultHistoryMaxPages,
	}
}

// GetHistory returns the ordered transcript for one session. Ordering is
// ascending by the backend's timestamp string; the backend emits an ISO-like
// format, so lexical order is chronological order.
func (s *HistoryService) GetHistory(ctx context.Context, sessionID string) []domain.ChatTurn {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "GetHistory",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = DefaultHistoryPageSize
	}
	maxPages := s.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultHistoryMaxPages
	}

	var all []jamai.Row
	offset := 0
	for page := 0; page < maxPages; page++ {
		items, err := s.Table.ListRows(ctx, s.TableID, pageSize, offset)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("history fetch failed")
			return []domain.ChatTurn{{
				Role: domain.RoleAssistant,
				Content: fmt.Sprintf("⚠️ **Connection Error**: Could not load chat history. "+
					"The server returned: *%v*. Please check your API key or internet connection.", err),
				Timestamp: "System",
			}}
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if len(items) < pageSize {
			break
		}
		offset += pageSize
	}

	want := strings.TrimSpace(sessionID)
	history := make([]domain.ChatTurn, 0, len(all))
	for _, row := range all {
		if !row.Has(colSessionID) {
			continue
		}
		if strings.TrimSpace(row.Text(colSessionID)) != want {
			continue
		}

		ts := row.Timestamp()
		if ts == "" {
			ts = unknownTimestamp
		}
		if user := row.Text(colUser); user != "" {
			history = append(history, domain.ChatTurn{Role: domain.RoleUser, Content: user, Timestamp: ts})
		}
		if ai := row.Text(colAI); ai != "" {
			history = append(history, domain.ChatTurn{Role: domain.RoleAssistant, Content: ai, Timestamp: ts})
		}
	}

	// Stable sort keeps the user turn ahead of the assistant turn that shares
	// its row timestamp.
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp < history[j].Timestamp
	})
	span.SetAttributes(attribute.Int("history.turns", len(history)))
	return history
}
