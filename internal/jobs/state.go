package jobs

import (
	"fmt"
	"strings"

	"dubber/internal/services"
)

// State is a status-specific view of a record. Each variant carries only the
// fields the pipeline guarantees at that status.
type State interface {
	Status() Status
}

// Uploaded is a record whose original video is stored and nothing else.
type Uploaded struct {
	FilePath      string
	LanguageToDub string
}

// Transcribed adds the transcript.
type Transcribed struct {
	Uploaded
	Transcript     string
	TranscriptPath string
}

// Translated adds the translated text.
type Translated struct {
	Transcribed
	Translation      string
	DetectedLanguage string
}

// Synthesized adds the synthesized audio path.
type Synthesized struct {
	Translated
	SynthesizedAudioPath string
}

// Aligned is the terminal success state.
type Aligned struct {
	Synthesized
	AlignedAudioPath string
}

// Failed is the terminal failure state.
type Failed struct {
	Message string
}

func (Uploaded) Status() Status    { return StatusUploaded }
func (Transcribed) Status() Status { return StatusTranscribed }
func (Translated) Status() Status  { return StatusTranslated }
func (Synthesized) Status() Status { return StatusSynthesized }
func (Aligned) Status() Status     { return StatusAligned }
func (Failed) Status() Status      { return StatusError }

// State narrows r to its typed variant. It fails with ErrValidation when a
// field the status guarantees is missing. languageToDub is optional at every
// status; stages that need it validate it themselves.
func (r *Record) State() (State, error) {
	if r == nil {
		return nil, services.Wrap(services.ErrValidation, "jobs", "state", "nil record", nil)
	}
	if r.Status == StatusError {
		return Failed{Message: r.FailureSummary()}, nil
	}
	if _, ok := statusRank[r.Status]; !ok {
		return nil, services.Wrap(services.ErrValidation, "jobs", "state", fmt.Sprintf("unknown status %q", r.Status), nil)
	}

	if err := require(r.Status, "filePath", r.FilePath); err != nil {
		return nil, err
	}
	uploaded := Uploaded{FilePath: r.FilePath, LanguageToDub: r.LanguageToDub}
	if r.Status == StatusUploaded {
		return uploaded, nil
	}

	if err := require(r.Status, "transcript", r.Transcript); err != nil {
		return nil, err
	}
	transcribed := Transcribed{Uploaded: uploaded, Transcript: r.Transcript, TranscriptPath: r.TranscriptPath}
	if r.Status == StatusTranscribed {
		return transcribed, nil
	}

	if err := require(r.Status, "translation", r.Translation); err != nil {
		return nil, err
	}
	translated := Translated{Transcribed: transcribed, Translation: r.Translation, DetectedLanguage: r.DetectedLanguage}
	if r.Status == StatusTranslated {
		return translated, nil
	}

	if err := require(r.Status, "synthesizedAudioPath", r.SynthesizedAudioPath); err != nil {
		return nil, err
	}
	synthesized := Synthesized{Translated: translated, SynthesizedAudioPath: r.SynthesizedAudioPath}
	if r.Status == StatusSynthesized {
		return synthesized, nil
	}

	if err := require(r.Status, "alignedAudioPath", r.AlignedAudioPath); err != nil {
		return nil, err
	}
	return Aligned{Synthesized: synthesized, AlignedAudioPath: r.AlignedAudioPath}, nil
}

func require(status Status, field, value string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return services.Wrap(services.ErrValidation, "jobs", "state", fmt.Sprintf("%s record missing %s", status, field), nil)
}
