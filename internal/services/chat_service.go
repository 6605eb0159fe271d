// Package services – ChatService
//
// This file implements the chat orchestration flow: augment the user's
// message with live duty/booking context, append it as a row to the hosted
// assistant table (which generates the reply column), then scan the reply for
// an embedded action directive and execute it.
//
// The whole flow degrades to strings: any failure is rendered as a
// user-facing error message rather than propagated, because the UI consuming
// this layer can only display text.
//
// Observability: the public method is OpenTelemetry-instrumented, and
// Prometheus counters track chat turns and executed directives.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/caredesk/clinic-assistant/internal/directive"
	"github.com/caredesk/clinic-assistant/internal/domain"
	"github.com/caredesk/clinic-assistant/internal/jamai"
)

// Column names of the hosted chat table.
const (
	colUser      = "User"
	colSessionID = "Session ID"
	colUserRole  = "User Role"
	colUserEmail = "User Email"
	colAI        = "AI"
)

// systemInstruction is appended to every outgoing message. It tells the
// assistant exactly how to request a booking or cancellation, and to keep
// asking for details instead of emitting a partial directive.
const systemInstruction = `

SYSTEM INSTRUCTION:
You have the ability to book and cancel appointments directly in the database.

1. BOOKING:
If the user explicitly asks to book an appointment and provides ALL the following details:
- Doctor Name
- Date (YYYY-MM-DD format preferred, convert if necessary)
- Time (HH:MM format)

Then, output a JSON block EXACTLY like this:
` + "```json" + `
{
    "action": "book_appointment",
    "doctor_name": "Dr. Name",
    "date": "YYYY-MM-DD",
    "time": "HH:MM"
}
` + "```" + `

2. CANCELLATION:
If the user explicitly asks to CANCEL an appointment and provides ALL the following details:
- Doctor Name
- Date (YYYY-MM-DD format preferred)
- Time (HH:MM format)

Then, output a JSON block EXACTLY like this:
` + "```json" + `
{
    "action": "cancel_appointment",
    "doctor_name": "Dr. Name",
    "date": "YYYY-MM-DD",
    "time": "HH:MM"
}
` + "```" + `

If any detail is missing for either action, ask the user for it. Do not output the JSON until you have all 3 details.
`

var (
	// chatTurns counts completed chat turns by outcome
	// (ok, directive, upstream_error, empty_reply).
	chatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Total number of chat turns processed.",
		},
		[]string{"outcome"},
	)

	// directiveExecs counts executed assistant directives by action and result.
	directiveExecs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_directives_total",
			Help: "Total number of assistant action directives executed.",
		},
		[]string{"action", "result"},
	)
)

func init() {
	prometheus.MustRegister(chatTurns, directiveExecs)
}

// ChatTable is the slice of the hosted table client the chat flow needs.
type ChatTable interface {
	AddRows(ctx context.Context, tableID string, rows []map[string]string) (*jamai.AddRowsResponse, error)
}

// ContextBuilder supplies the text blocks injected into outgoing messages.
type ContextBuilder interface {
	DutyListContext(ctx context.Context) string
	BookingListContext(ctx context.Context, role, userEmail string) string
}

// BookingOps is the slice of BookingService used by directive dispatch.
type BookingOps interface {
	Create(ctx context.Context, doctor, date, appointmentTime, patientEmail string) BookingResult
	Cancel(ctx context.Context, doctor, date, appointmentTime, patientEmail string) BookingResult
}

// ChatService orchestrates one chat turn end to end.
type ChatService struct {
	Table    ChatTable
	TableID  string
	Contexts ContextBuilder
	Bookings BookingOps
	Parser   directive.Parser
}

// NewChatService wires the chat orchestration flow.
func NewChatService(table ChatTable, tableID string, contexts ContextBuilder, bookings BookingOps) *ChatService {
	return &ChatService{
		Table:    table,
		TableID:  tableID,
		Contexts: contexts,
		Bookings: bookings,
		Parser:   directive.NewFenceParser(),
	}
}

// RoleFromLabel derives the caller role from the UI context label. Any label
// mentioning "staff" (case-insensitive) is the staff console.
func RoleFromLabel(label string) string {
	if strings.Contains(strings.ToLower(label), "staff") {
		return domain.CallerStaff
	}
	return domain.CallerPublic
}

// GetResponse runs one chat turn and returns the text to display. It never
// returns an error: every failure path yields a message the UI can show.
func (s *ChatService) GetResponse(ctx context.Context, message, contextLabel, sessionID, userEmail string) string {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "GetResponse",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
		),
	)
	defer span.End()

	role := RoleFromLabel(contextLabel)
	span.SetAttributes(attribute.String("user.role", role))

	// Augment the message so the assistant sees current clinic state. The
	// blocks land in the User column of the hosted table along with the text.
	full := message
	if duty := s.Contexts.DutyListContext(ctx); duty != "" {
		full += duty
	}
	if bookings := s.Contexts.BookingListContext(ctx, role, userEmail); bookings != "" {
		full += bookings
	}
	full += systemInstruction

	row := map[string]string{
		colUser:      full,
		colSessionID: sessionID,
		colUserRole:  role,
	}
	if userEmail != "" {
		row[colUserEmail] = userEmail
	}

	resp, err := s.Table.AddRows(ctx, s.TableID, []map[string]string{row})
	if err != nil {
		chatTurns.WithLabelValues("upstream_error").Inc()
		return fmt.Sprintf("Error connecting to JamAI: %v", err)
	}
	if len(resp.Rows) == 0 {
		chatTurns.WithLabelValues("empty_reply").Inc()
		return "Error: No response received from JamAI Table."
	}

	reply, ok := resp.Rows[0].Text(colAI)
	if !ok {
		// Generative tables put the output column last.
		reply, ok = resp.Rows[0].LastText()
	}
	if !ok {
		chatTurns.WithLabelValues("empty_reply").Inc()
		return "Error: No response received from JamAI Table."
	}

	d, found := s.Parser.Parse(reply)
	if !found {
		chatTurns.WithLabelValues("ok").Inc()
		return reply
	}

	chatTurns.WithLabelValues("directive").Inc()
	return s.dispatch(ctx, d, userEmail, reply)
}

// dispatch executes a parsed directive and renders its outcome. The caller's
// own identity is used, never anything the model put in the block, so the
// assistant cannot book on someone else's behalf.
func (s *ChatService) dispatch(ctx context.Context, d *directive.Directive, userEmail, reply string) string {
	switch d.Action {
	case directive.ActionBook:
		res := s.Bookings.Create(ctx, d.DoctorName, d.Date, d.Time, userEmail)
		directiveExecs.WithLabelValues(d.Action, resultLabel(res)).Inc()
		if res.Success {
			return fmt.Sprintf("✅ Success! I have booked your appointment with **%s** on **%s** at **%s**.",
				d.DoctorName, d.Date, d.Time)
		}
		return fmt.Sprintf("❌ I tried to book that for you, but the system returned an error: %s", res.Message)

	case directive.ActionCancel:
		res := s.Bookings.Cancel(ctx, d.DoctorName, d.Date, d.Time, userEmail)
		directiveExecs.WithLabelValues(d.Action, resultLabel(res)).Inc()
		if res.Success {
			return fmt.Sprintf("✅ Success! I have cancelled your appointment with **%s** on **%s** at **%s**.",
				d.DoctorName, d.Date, d.Time)
		}
		return fmt.Sprintf("❌ I tried to cancel that for you, but I couldn't find a matching booking or an error occurred: %s", res.Message)
	}

	// Parser only admits known actions; anything else means the reply stands.
	return reply
}

func resultLabel(res BookingResult) string {
	if res.Success {
		return "ok"
	}
	return "failed"
}
