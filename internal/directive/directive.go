// Package directive extracts structured action requests embedded in
// free-form assistant output.
//
// The assistant is instructed to request side effects by emitting exactly one
// fenced JSON block:
//
//	```json
//	{
//	    "action": "book_appointment",
//	    "doctor_name": "Dr. Name",
//	    "date": "YYYY-MM-DD",
//	    "time": "HH:MM"
//	}
//	```
//
// Anything that does not match the fence grammar, fails to parse as JSON, or
// names an unknown action is treated as "no directive": the caller shows the
// reply verbatim and nothing is executed. The parser sits behind a small
// interface so the orchestration layer stays testable without real model
// output.
package directive

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Actions the assistant may request.
const (
	ActionBook   = "book_appointment"
	ActionCancel = "cancel_appointment"
)

// Directive is one parsed action request. It lives for a single
// response-processing step and is never persisted.
type Directive struct {
	Action     string `json:"action"`
	DoctorName string `json:"doctor_name"`
	Date       string `json:"date"`
	Time       string `json:"time"`
}

// Parser extracts a directive from raw assistant text.
type Parser interface {
	// Parse returns the embedded directive and true, or (nil, false) when the
	// text carries none (including malformed or unrecognized blocks).
	Parse(reply string) (*Directive, bool)
}

// fenceRE matches the first ```json { ... } ``` block. Non-greedy with dot
// matching newlines, mirroring how the assistant is prompted to format it.
var fenceRE = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// FenceParser is the production Parser for the fenced-JSON wire format.
type FenceParser struct{}

// NewFenceParser returns a Parser for the fenced-JSON directive format.
func NewFenceParser() FenceParser { return FenceParser{} }

// Parse implements Parser.
func (FenceParser) Parse(reply string) (*Directive, bool) {
	m := fenceRE.FindStringSubmatch(reply)
	if m == nil {
		return nil, false
	}

	var d Directive
	if err := json.Unmarshal([]byte(m[1]), &d); err != nil {
		// The model mangled the JSON; treat the block as prose.
		return nil, false
	}

	switch strings.TrimSpace(d.Action) {
	case ActionBook, ActionCancel:
	default:
		return nil, false
	}
	d.Action = strings.TrimSpace(d.Action)
	return &d, true
}
