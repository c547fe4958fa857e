package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/client"
	"github.com/vocaldocs/api/internal/config"
	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/pipeline"
	"github.com/vocaldocs/api/internal/store"
)

const defaultLanguage = "english"

// ValidationError is returned for requests rejected before anything is
// written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IntakeService accepts uploads and starts the pipeline for them.
type IntakeService struct {
	jobs       store.JobStore
	storage    client.StorageClient
	dispatcher pipeline.Dispatcher
	limits     config.IntakeConfig
	ttl        time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewIntakeService(jobs store.JobStore, storage client.StorageClient, dispatcher pipeline.Dispatcher, limits config.IntakeConfig, ttl time.Duration, log zerolog.Logger) *IntakeService {
	return &IntakeService{
		jobs:       jobs,
		storage:    storage,
		dispatcher: dispatcher,
		limits:     limits,
		ttl:        ttl,
		log:        log.With().Str("component", "intake").Logger(),
		now:        time.Now,
	}
}

// SubmitPDF stores the decoded document and creates a PDF job.
func (s *IntakeService) SubmitPDF(ctx context.Context, owner string, req model.PDFUpload) (*model.Job, error) {
	if err := checkFileName(req.FileName); err != nil {
		return nil, err
	}
	if req.StartPage < 1 || req.EndPage < req.StartPage {
		return nil, invalid("endPage", "page range %d-%d is invalid", req.StartPage, req.EndPage)
	}
	if s.limits.MaxPages > 0 && req.EndPage-req.StartPage+1 > s.limits.MaxPages {
		return nil, invalid("endPage", "at most %d pages per request", s.limits.MaxPages)
	}

	content, err := base64.StdEncoding.DecodeString(req.FileContent)
	if err != nil {
		return nil, invalid("fileContent", "not valid base64")
	}
	if len(content) == 0 {
		return nil, invalid("fileContent", "empty document")
	}
	if s.limits.MaxPDFBytes > 0 && len(content) > s.limits.MaxPDFBytes {
		return nil, invalid("fileContent", "document exceeds %d bytes", s.limits.MaxPDFBytes)
	}

	job := s.newJob(owner, model.InputPDF, req.Language)
	job.FileName = req.FileName
	job.StartPage = req.StartPage
	job.EndPage = req.EndPage

	return s.submit(ctx, job, content, "application/pdf")
}

// SubmitText stores the text and creates a TEXT job.
func (s *IntakeService) SubmitText(ctx context.Context, owner string, req model.TextUpload) (*model.Job, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, invalid("text", "text is blank")
	}
	if n := utf8.RuneCountInString(req.Text); s.limits.MaxTextChars > 0 && n > s.limits.MaxTextChars {
		return nil, invalid("text", "text exceeds %d characters", s.limits.MaxTextChars)
	}
	if req.VoiceID != "" {
		if _, ok := pipeline.LookupVoice(req.VoiceID); !ok {
			return nil, invalid("voice_id", "unknown voice %q", req.VoiceID)
		}
	}

	job := s.newJob(owner, model.InputText, req.Language)
	job.Text = req.Text
	job.VoiceID = req.VoiceID
	if job.VoiceID == "" {
		job.VoiceID = pipeline.VoiceFor(job.Language).ID
	}

	return s.submit(ctx, job, []byte(req.Text), "text/plain; charset=utf-8")
}

func (s *IntakeService) newJob(owner string, kind model.InputKind, language string) *model.Job {
	now := s.now().UTC()
	if language = strings.TrimSpace(language); language == "" {
		language = defaultLanguage
	}
	return &model.Job{
		ReferenceKey:   uuid.New().String(),
		Owner:          owner,
		InputType:      kind,
		Language:       language,
		Status:         model.StatusUploadCompleted,
		UploadDateTime: now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttl).Unix(),
	}
}

// submit writes the artifact before the record so the splitter never sees
// a job whose source is missing.
func (s *IntakeService) submit(ctx context.Context, job *model.Job, body []byte, contentType string) (*model.Job, error) {
	key := model.SourceKey(job.ReferenceKey, job.FileName)
	if _, err := s.storage.Upload(ctx, key, bytes.NewReader(body), contentType); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	job.S3Path = model.S3URI(s.storage.Bucket(), key)

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	err := s.dispatcher.JobCreated(ctx, model.JobCreatedEvent{
		ReferenceKey: job.ReferenceKey,
		InputType:    job.InputType,
		S3Path:       job.S3Path,
		StartPage:    job.StartPage,
		EndPage:      job.EndPage,
	})
	if err != nil {
		err = fmt.Errorf("failed to start pipeline: %w", err)
		s.abandon(ctx, job, err)
		return nil, err
	}

	s.log.Info().
		Str("reference_key", job.ReferenceKey).
		Str("input_type", string(job.InputType)).
		Msg("job accepted")
	return job, nil
}

// abandon moves a job whose split was never dispatched to Split-Failed so
// it does not sit in Upload-Completed forever. A splitter that did receive
// the event sees a non-input status and skips.
func (s *IntakeService) abandon(ctx context.Context, job *model.Job, cause error) {
	log := s.log.With().Str("reference_key", job.ReferenceKey).Logger()
	log.Error().Err(cause).Msg("pipeline not started")
	if _, err := s.jobs.Transition(ctx, model.Transition{
		ReferenceKey: job.ReferenceKey,
		From:         model.StatusUploadCompleted,
		To:           model.StatusSplitFailed,
		Error:        cause.Error(),
	}); err != nil {
		log.Error().Err(err).Msg("failed to mark job failed")
	}
}

func checkFileName(name string) error {
	if name == "" {
		return invalid("fileName", "file name is required")
	}
	if strings.ContainsAny(name, `/\`) || name != path.Base(name) || name == "." || name == ".." {
		return invalid("fileName", "file name must not contain path components")
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		return invalid("fileName", "only .pdf files are accepted")
	}
	return nil
}
