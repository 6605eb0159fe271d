// Package domain defines the persistence models for clinic bookings and the
// duty roster, plus the transient chat types exchanged with the hosted
// assistant table. The persisted types are mapped with GORM and form the core
// data layer of the clinic assistant.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Chat roles used throughout the application.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Caller roles. A caller is Staff when the surrounding UI context says so;
// everybody else is Public.
const (
	CallerStaff  = "Staff"
	CallerPublic = "Public"
)

// GuestPatient is stored on bookings made without an identified caller.
const GuestPatient = "Guest"

// Booking represents one appointment slot reserved with a doctor. There is no
// uniqueness constraint: a booking is identified operationally by the
// (doctor_name, date, appointment_time[, patient_name]) tuple, and
// cancellation deletes whatever rows match it.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - DoctorName: doctor the slot is reserved with.
//   - PatientName: patient email, or "Guest" when the caller is anonymous.
//   - AppointmentTime: wall-clock slot, "HH:MM".
//   - Date: appointment day, ISO "YYYY-MM-DD". Kept as a string so date
//     comparisons match the lexical >= filter used by the context builder.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (cancelled rows stay for audit).
type Booking struct {
	ID              string         `json:"id"               gorm:"type:char(36);primaryKey"`
	DoctorName      string         `json:"doctor_name"      gorm:"type:varchar(255);not null;index:idx_booking_slot,priority:1"`
	PatientName     string         `json:"patient_name"     gorm:"type:varchar(255);not null;index"`
	AppointmentTime string         `json:"appointment_time" gorm:"type:varchar(16);not null;index:idx_booking_slot,priority:3"`
	Date            string         `json:"date"             gorm:"type:varchar(10);not null;index:idx_booking_slot,priority:2"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                gorm:"index"`
}

// TableName returns the database table name for Booking.
func (Booking) TableName() string { return "bookings" }

// DutyRecord is one row of the clinic duty roster. The roster is maintained
// by staff outside this application and has no schema this layer relies on;
// every populated column is rendered as-is into the duty context block.
type DutyRecord struct {
	ID         uint           `json:"id"          gorm:"primaryKey"`
	DoctorName string         `json:"doctor_name" gorm:"type:varchar(255)"`
	Day        string         `json:"day"         gorm:"type:varchar(32)"`
	Shift      string         `json:"shift"       gorm:"type:varchar(64)"`
	Room       string         `json:"room"        gorm:"type:varchar(64)"`
	Notes      string         `json:"notes"       gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for DutyRecord.
func (DutyRecord) TableName() string { return "duty_list" }

// Fields returns the populated roster columns as key/value pairs with a
// stable key order. Empty columns and bookkeeping fields are skipped so the
// rendered line only carries what staff actually filled in.
func (d DutyRecord) Fields() []string {
	kv := map[string]string{
		"doctor_name": d.DoctorName,
		"day":         d.Day,
		"shift":       d.Shift,
		"room":        d.Room,
		"notes":       d.Notes,
	}
	keys := make([]string, 0, len(kv))
	for k, v := range kv {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %s", k, kv[k]))
	}
	return out
}

// ChatTurn is one reconstructed utterance of a conversation. Turns are not
// persisted by this layer; they are derived on demand from the hosted chat
// table's row listing.
//
// Timestamp is the source-provided string (updated-at preferred over
// created-at). Ordering is a plain string comparison, so the backend must
// emit a lexically sortable format.
type ChatTurn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}
