package jobs

import (
	"errors"
	"testing"

	"dubber/internal/services"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusUploaded, StatusTranscribed, true},
		{StatusTranscribed, StatusTranslated, true},
		{StatusTranslated, StatusSynthesized, true},
		{StatusSynthesized, StatusAligned, true},
		{StatusUploaded, StatusError, true},
		{StatusSynthesized, StatusError, true},
		{StatusUploaded, StatusTranslated, false},
		{StatusTranslated, StatusTranscribed, false},
		{StatusAligned, StatusError, false},
		{StatusError, StatusUploaded, false},
		{StatusUploaded, StatusUploaded, false},
		{StatusUploaded, "paused", false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(" Translated ")
	if err != nil || status != StatusTranslated {
		t.Fatalf("expected translated, got %q err=%v", status, err)
	}
	if _, err := ParseStatus("paused"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetFailedAndClearError(t *testing.T) {
	record := &Record{Status: StatusTranslated}
	record.SetFailed(FieldSynthesisError, "Cartesia API error: 500 body")
	if record.Status != StatusError || record.SynthesisError != "Cartesia API error: 500 body" {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.FailureSummary() != "Cartesia API error: 500 body" {
		t.Fatalf("unexpected summary %q", record.FailureSummary())
	}
	record.ClearError(FieldSynthesisError)
	if record.SynthesisError != "" {
		t.Fatal("expected synthesis error to be cleared")
	}
}

func TestStateVariants(t *testing.T) {
	base := Record{
		Status:               StatusSynthesized,
		FilePath:             "videos/u/v/original",
		LanguageToDub:        "es",
		Transcript:           "hello",
		Translation:          "hola",
		SynthesizedAudioPath: "videos/u/v/synthesized.mp3",
	}
	state, err := base.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	synth, ok := state.(Synthesized)
	if !ok {
		t.Fatalf("expected Synthesized, got %T", state)
	}
	if synth.Translation != "hola" || synth.LanguageToDub != "es" || synth.Transcript != "hello" {
		t.Fatalf("unexpected variant %+v", synth)
	}

	failed := Record{Status: StatusError, TranslationError: "boom"}
	state, err = failed.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if f, ok := state.(Failed); !ok || f.Message != "boom" {
		t.Fatalf("expected Failed with message, got %#v", state)
	}
}

func TestStateRejectsMissingGuaranteedFields(t *testing.T) {
	cases := []Record{
		{Status: StatusUploaded},
		{Status: StatusTranscribed, FilePath: "p"},
		{Status: StatusTranslated, FilePath: "p", Transcript: "t"},
		{Status: StatusAligned, FilePath: "p", Transcript: "t", Translation: "x", SynthesizedAudioPath: "s"},
		{Status: "paused", FilePath: "p"},
	}
	for _, record := range cases {
		if _, err := record.State(); !errors.Is(err, services.ErrValidation) {
			t.Errorf("State(%s) expected validation error, got %v", record.Status, err)
		}
	}
}
