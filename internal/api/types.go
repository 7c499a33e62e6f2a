package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobItem describes a job record in a transport-friendly format.
type JobItem struct {
	ID                   string `json:"id"`
	UserID               string `json:"userId"`
	Status               string `json:"status"`
	FilePath             string `json:"filePath"`
	LanguageToDub        string `json:"languageToDub,omitempty"`
	Transcript           string `json:"transcript,omitempty"`
	TranscriptPath       string `json:"transcriptPath,omitempty"`
	DetectedLanguage     string `json:"detectedLanguage,omitempty"`
	Translation          string `json:"translation,omitempty"`
	SynthesizedAudioPath string `json:"synthesizedAudioPath,omitempty"`
	AlignedAudioPath     string `json:"alignedAudioPath,omitempty"`
	Error                string `json:"error,omitempty"`
	TranslationError     string `json:"translationError,omitempty"`
	SynthesisError       string `json:"synthesisError,omitempty"`
	AlignmentError       string `json:"alignmentError,omitempty"`
	CompensationError    string `json:"compensationError,omitempty"`
	Failure              string `json:"failure,omitempty"`
	Version              int64  `json:"version"`
	CreatedAt            string `json:"createdAt,omitempty"`
	UpdatedAt            string `json:"updatedAt,omitempty"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	JobCounts    map[string]int     `json:"jobCounts"`
	StageHealth  []StageHealth      `json:"stageHealth"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Items []JobItem `json:"items"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobItem `json:"job"`
}
