package api

import (
	"time"

	"dubber/internal/deps"
	"dubber/internal/jobs"
	"dubber/internal/stage"
)

// FromRecord converts a job record into its API representation.
func FromRecord(record *jobs.Record) JobItem {
	if record == nil {
		return JobItem{}
	}
	return JobItem{
		ID:                   record.ID,
		UserID:               record.UserID,
		Status:               string(record.Status),
		FilePath:             record.FilePath,
		LanguageToDub:        record.LanguageToDub,
		Transcript:           record.Transcript,
		TranscriptPath:       record.TranscriptPath,
		DetectedLanguage:     record.DetectedLanguage,
		Translation:          record.Translation,
		SynthesizedAudioPath: record.SynthesizedAudioPath,
		AlignedAudioPath:     record.AlignedAudioPath,
		Error:                record.Error,
		TranslationError:     record.TranslationError,
		SynthesisError:       record.SynthesisError,
		AlignmentError:       record.AlignmentError,
		CompensationError:    record.CompensationError,
		Failure:              record.FailureSummary(),
		Version:              record.Version,
		CreatedAt:            FormatTime(record.CreatedAt),
		UpdatedAt:            FormatTime(record.UpdatedAt),
	}
}

// FromRecords converts a slice of records, skipping nils.
func FromRecords(records []*jobs.Record) []JobItem {
	if len(records) == 0 {
		return nil
	}
	out := make([]JobItem, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		out = append(out, FromRecord(record))
	}
	return out
}

// MergeJobCounts produces a string-keyed count for every known status,
// reporting zero for statuses with no jobs.
func MergeJobCounts(counts map[jobs.Status]int) map[string]int {
	out := make(map[string]int, len(jobs.AllStatuses()))
	for _, status := range jobs.AllStatuses() {
		out[string(status)] = counts[status]
	}
	return out
}

// FromStageHealth converts stage readiness reports, preserving order.
func FromStageHealth(health []stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		})
	}
	return out
}

// FormatTime renders t for API payloads; the zero time renders empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
