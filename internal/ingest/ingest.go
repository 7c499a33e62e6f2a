package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dubber/internal/blobstore"
	"dubber/internal/jobs"
	"dubber/internal/language"
	"dubber/internal/logging"
	"dubber/internal/services"
)

// EventKind names an upload lifecycle step.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// Event is one step of an upload.
type Event struct {
	Kind       EventKind
	ObjectPath string
	JobID      string
	Percent    float64
	Err        error
}

// Observer receives upload events in order. It runs on the submitting
// goroutine and must not block.
type Observer func(Event)

// ObjectStore is the blob surface the upload path needs.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, objectPath, contentType string) error
	Delete(ctx context.Context, objectPath string) error
}

// ProgressUploader is implemented by object stores that report progress
// while a file streams.
type ProgressUploader interface {
	UploadWithProgress(ctx context.Context, localPath, objectPath, contentType string, progress blobstore.ProgressFunc) error
}

// RecordCreator creates job records.
type RecordCreator interface {
	Create(ctx context.Context, job jobs.NewJob) (*jobs.Record, error)
}

// Request describes one upload.
type Request struct {
	UserID        string
	LocalPath     string
	LanguageToDub string
	// ContentType defaults from the file extension.
	ContentType string
}

// Service stores uploads and creates their job records.
type Service struct {
	records  RecordCreator
	objects  ObjectStore
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithObserver registers a lifecycle observer.
func WithObserver(observer Observer) Option {
	return func(s *Service) {
		s.observer = observer
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logging.NewComponentLogger(logger, "ingest")
	}
}

// WithClock overrides the time source used for object paths.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds an upload service.
func New(records RecordCreator, objects ObjectStore, opts ...Option) *Service {
	s := &Service{
		records: records,
		objects: objects,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit uploads req.LocalPath and creates the job record that starts the
// pipeline.
func (s *Service) Submit(ctx context.Context, req Request) (*jobs.Record, error) {
	userID := strings.TrimSpace(req.UserID)
	if err := jobs.ValidateUserID(userID); err != nil {
		return nil, err
	}
	lang := language.Canonical(req.LanguageToDub)
	if !language.Supported(lang) {
		return nil, services.Wrap(services.ErrValidation, "ingest", "submit",
			fmt.Sprintf("unsupported language %q (supported: %s)", req.LanguageToDub, strings.Join(language.Codes(), ", ")), nil)
	}
	info, err := os.Stat(req.LocalPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "submit", "video not readable", err)
	}
	if !info.Mode().IsRegular() {
		return nil, services.Wrap(services.ErrValidation, "ingest", "submit", req.LocalPath+" is not a regular file", nil)
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = detectContentType(req.LocalPath)
	}

	objectPath := blobstore.OriginalPath(userID, s.now(), filepath.Base(req.LocalPath))
	logger := logging.WithContext(services.WithUserID(ctx, userID), s.logger)
	s.emit(Event{Kind: EventStarted, ObjectPath: objectPath})

	if err := s.upload(ctx, req.LocalPath, objectPath, contentType); err != nil {
		err = fmt.Errorf("upload video: %w", err)
		s.emit(Event{Kind: EventFailed, ObjectPath: objectPath, Err: err})
		return nil, err
	}

	record, err := s.records.Create(ctx, jobs.NewJob{
		ID:            uuid.NewString(),
		UserID:        userID,
		FilePath:      objectPath,
		LanguageToDub: lang,
	})
	if err != nil {
		err = fmt.Errorf("create job record: %w", err)
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), objectPath); delErr != nil {
			logging.ErrorWithContext(logger, "failed to remove upload after record failure", "ingest_compensation_failed",
				logging.String("object_path", objectPath),
				logging.Error(delErr),
				logging.Hint("delete the orphaned object manually"),
			)
			err = errors.Join(err, fmt.Errorf("remove uploaded video: %w", delErr))
		}
		s.emit(Event{Kind: EventFailed, ObjectPath: objectPath, Err: err})
		return nil, err
	}

	logger.Info("upload accepted",
		logging.Event("ingest_complete"),
		logging.JobID(record.ID),
		logging.String("object_path", objectPath),
		logging.String("language", lang),
		logging.Int64("size_bytes", info.Size()),
	)
	s.emit(Event{Kind: EventCompleted, ObjectPath: objectPath, JobID: record.ID, Percent: 100})
	return record, nil
}

// upload emits a progress event each time the whole-percent figure changes.
// Stores without progress support produce no progress events.
func (s *Service) upload(ctx context.Context, localPath, objectPath, contentType string) error {
	uploader, ok := s.objects.(ProgressUploader)
	if !ok {
		return s.objects.Upload(ctx, localPath, objectPath, contentType)
	}
	last := int64(-1)
	return uploader.UploadWithProgress(ctx, localPath, objectPath, contentType, func(written, total int64) {
		percent := int64(100)
		if total > 0 {
			percent = min(written*100/total, 100)
		}
		if percent == last {
			return
		}
		last = percent
		s.emit(Event{Kind: EventProgress, ObjectPath: objectPath, Percent: float64(percent)})
	})
}

// Not every host ships a mime.types entry for video containers.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
}

func detectContentType(localPath string) string {
	ext := strings.ToLower(filepath.Ext(localPath))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *Service) emit(event Event) {
	if s.observer != nil {
		s.observer(event)
	}
}
