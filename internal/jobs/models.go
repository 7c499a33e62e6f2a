package jobs

import (
	"fmt"
	"strings"
	"time"

	"dubber/internal/services"
)

// Status represents the lifecycle of a job record.
type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusTranscribed Status = "transcribed"
	StatusTranslated  Status = "translated"
	StatusSynthesized Status = "synthesized"
	StatusAligned     Status = "aligned"
	StatusError       Status = "error"
)

// pipelineOrder is the fixed forward sequence; error sits outside it.
var pipelineOrder = []Status{
	StatusUploaded,
	StatusTranscribed,
	StatusTranslated,
	StatusSynthesized,
	StatusAligned,
}

var statusRank = func() map[Status]int {
	rank := make(map[Status]int, len(pipelineOrder))
	for i, status := range pipelineOrder {
		rank[status] = i
	}
	return rank
}()

// AllStatuses lists every status in display order.
func AllStatuses() []Status {
	out := make([]Status, 0, len(pipelineOrder)+1)
	out = append(out, pipelineOrder...)
	return append(out, StatusError)
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", services.Wrap(services.ErrValidation, "jobs", "parse status", fmt.Sprintf("unknown status %q", value), nil)
	}
	return status, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if s == StatusError {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further stage will run for s.
func (s Status) Terminal() bool {
	return s == StatusAligned || s == StatusError
}

// CanTransition reports whether a record may move from one status to another:
// one step forward along the pipeline, or to error from any non-terminal
// status.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	return statusRank[to] == statusRank[from]+1
}

// ErrorField names the record field a failing stage writes.
type ErrorField string

const (
	FieldError             ErrorField = "error"
	FieldTranslationError  ErrorField = "translationError"
	FieldSynthesisError    ErrorField = "synthesisError"
	FieldAlignmentError    ErrorField = "alignmentError"
	FieldCompensationError ErrorField = "compensationError"
)

// Record is the persisted job document. JSON names are the external
// contract consumed by clients polling for status.
type Record struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId"`
	Status               Status    `json:"status"`
	FilePath             string    `json:"filePath"`
	LanguageToDub        string    `json:"languageToDub,omitempty"`
	Transcript           string    `json:"transcript,omitempty"`
	TranscriptPath       string    `json:"transcriptPath,omitempty"`
	DetectedLanguage     string    `json:"detectedLanguage,omitempty"`
	Translation          string    `json:"translation,omitempty"`
	SynthesizedAudioPath string    `json:"synthesizedAudioPath,omitempty"`
	AlignedAudioPath     string    `json:"alignedAudioPath,omitempty"`
	Error                string    `json:"error,omitempty"`
	TranslationError     string    `json:"translationError,omitempty"`
	SynthesisError       string    `json:"synthesisError,omitempty"`
	AlignmentError       string    `json:"alignmentError,omitempty"`
	CompensationError    string    `json:"compensationError,omitempty"`
	Version              int64     `json:"version"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Clone returns a copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// SetFailed moves the record to error and stores message in field.
func (r *Record) SetFailed(field ErrorField, message string) {
	r.Status = StatusError
	r.setErrorField(field, message)
}

// ClearError empties field. Stages call it on their own field when they
// commit successfully.
func (r *Record) ClearError(field ErrorField) {
	r.setErrorField(field, "")
}

// ErrorFor returns the value of field.
func (r *Record) ErrorFor(field ErrorField) string {
	switch field {
	case FieldError:
		return r.Error
	case FieldTranslationError:
		return r.TranslationError
	case FieldSynthesisError:
		return r.SynthesisError
	case FieldAlignmentError:
		return r.AlignmentError
	case FieldCompensationError:
		return r.CompensationError
	default:
		return ""
	}
}

// FailureSummary returns the first non-empty error field, for display.
func (r *Record) FailureSummary() string {
	for _, field := range []ErrorField{FieldError, FieldTranslationError, FieldSynthesisError, FieldAlignmentError, FieldCompensationError} {
		if msg := r.ErrorFor(field); msg != "" {
			return msg
		}
	}
	return ""
}

func (r *Record) setErrorField(field ErrorField, message string) {
	switch field {
	case FieldTranslationError:
		r.TranslationError = message
	case FieldSynthesisError:
		r.SynthesisError = message
	case FieldAlignmentError:
		r.AlignmentError = message
	case FieldCompensationError:
		r.CompensationError = message
	default:
		r.Error = message
	}
}

// NewJob carries the fields the upload path sets when creating a record.
type NewJob struct {
	ID            string
	UserID        string
	FilePath      string
	LanguageToDub string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	UserID   string
	Statuses []Status
	Limit    int
}

// ChangeKind distinguishes record creation from later writes.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
)

// Change is one entry of the change feed. Before is nil for creates.
type Change struct {
	Seq       int64
	Kind      ChangeKind
	JobID     string
	UserID    string
	Before    *Record
	After     *Record
	CreatedAt time.Time
}
