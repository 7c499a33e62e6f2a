package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const recordColumns = "id, user_id, status, file_path, language_to_dub, transcript, transcript_path, detected_language, translation, synthesized_audio_path, aligned_audio_path, error, translation_error, synthesis_error, alignment_error, compensation_error, version, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id                string
		userID            string
		statusStr         string
		filePath          string
		languageToDub     sql.NullString
		transcript        sql.NullString
		transcriptPath    sql.NullString
		detectedLanguage  sql.NullString
		translation       sql.NullString
		synthesizedPath   sql.NullString
		alignedPath       sql.NullString
		errorMessage      sql.NullString
		translationError  sql.NullString
		synthesisError    sql.NullString
		alignmentError    sql.NullString
		compensationError sql.NullString
		version           int64
		createdRaw        sql.NullString
		updatedRaw        sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&userID,
		&statusStr,
		&filePath,
		&languageToDub,
		&transcript,
		&transcriptPath,
		&detectedLanguage,
		&translation,
		&synthesizedPath,
		&alignedPath,
		&errorMessage,
		&translationError,
		&synthesisError,
		&alignmentError,
		&compensationError,
		&version,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		ID:                   id,
		UserID:               userID,
		Status:               Status(statusStr),
		FilePath:             filePath,
		LanguageToDub:        languageToDub.String,
		Transcript:           transcript.String,
		TranscriptPath:       transcriptPath.String,
		DetectedLanguage:     detectedLanguage.String,
		Translation:          translation.String,
		SynthesizedAudioPath: synthesizedPath.String,
		AlignedAudioPath:     alignedPath.String,
		Error:                errorMessage.String,
		TranslationError:     translationError.String,
		SynthesisError:       synthesisError.String,
		AlignmentError:       alignmentError.String,
		CompensationError:    compensationError.String,
		Version:              version,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	defer rows.Close()
	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func encodeSnapshot(record *Record) (any, error) {
	if record == nil {
		return nil, nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return string(data), nil
}

func decodeSnapshot(raw sql.NullString) (*Record, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var record Record
	if err := json.Unmarshal([]byte(raw.String), &record); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout keeps a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
