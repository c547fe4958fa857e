package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocaldocs/api/internal/client"
	"github.com/vocaldocs/api/internal/config"
	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/store"
)

type stubDispatcher struct {
	created []model.JobCreatedEvent
	err     error
}

func (d *stubDispatcher) JobCreated(_ context.Context, ev model.JobCreatedEvent) error {
	d.created = append(d.created, ev)
	return d.err
}

func (d *stubDispatcher) PagesReady(context.Context, model.PagesReadyMessage) error { return nil }
func (d *stubDispatcher) TextReady(context.Context, model.ObjectCreatedEvent) error  { return nil }

var testLimits = config.IntakeConfig{MaxPDFBytes: 1024, MaxTextChars: 50, MaxPages: 5}

type intakeFixture struct {
	svc        *IntakeService
	jobs       *store.MemoryStore
	storage    *client.MemoryStorage
	dispatcher *stubDispatcher
}

func newIntake(t *testing.T) *intakeFixture {
	t.Helper()
	f := &intakeFixture{
		jobs:       store.NewMemoryStore(),
		storage:    client.NewMemoryStorage("tts-bucket"),
		dispatcher: &stubDispatcher{},
	}
	f.svc = NewIntakeService(f.jobs, f.storage, f.dispatcher, testLimits, 84*time.Hour, zerolog.Nop())
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func pdfBody() string {
	return base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))
}

func TestSubmitText_CreatesJobAndArtifact(t *testing.T) {
	f := newIntake(t)
	ctx := context.Background()

	job, err := f.svc.SubmitText(ctx, "ana@example.com", model.TextUpload{Text: "hello world"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusUploadCompleted, job.Status)
	assert.Equal(t, model.InputText, job.InputType)
	assert.Equal(t, "english", job.Language)
	assert.Equal(t, "Joanna", job.VoiceID)
	assert.Equal(t, "s3://tts-bucket/upload/"+job.ReferenceKey+"/input.txt", job.S3Path)
	assert.Equal(t, time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC).Unix(), job.ExpiresAt)

	body, err := f.storage.Download(ctx, model.SourceKey(job.ReferenceKey, ""))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))

	stored, err := f.jobs.Get(ctx, job.ReferenceKey)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", stored.Owner)

	require.Len(t, f.dispatcher.created, 1)
	assert.Equal(t, job.ReferenceKey, f.dispatcher.created[0].ReferenceKey)
}

func TestSubmitText_ArabicGetsArabicVoice(t *testing.T) {
	f := newIntake(t)
	job, err := f.svc.SubmitText(context.Background(), "u", model.TextUpload{Text: "مرحبا", Language: "arabic"})
	require.NoError(t, err)
	assert.Equal(t, "Zeina", job.VoiceID)
}

func TestSubmitText_Rejections(t *testing.T) {
	f := newIntake(t)
	for name, text := range map[string]string{
		"blank":    "   \n\t",
		"too long": strings.Repeat("a", 51),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.SubmitText(context.Background(), "u", model.TextUpload{Text: text})
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, "text", ve.Field)
		})
	}
	keys, err := f.storage.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, f.dispatcher.created)
}

func TestSubmitPDF_CreatesJob(t *testing.T) {
	f := newIntake(t)
	ctx := context.Background()

	job, err := f.svc.SubmitPDF(ctx, "u", model.PDFUpload{
		FileContent: pdfBody(),
		FileName:    "report.pdf",
		StartPage:   2,
		EndPage:     4,
	})
	require.NoError(t, err)
	assert.Equal(t, model.InputPDF, job.InputType)
	assert.Equal(t, "report.pdf", job.FileName)
	assert.Equal(t, 2, job.StartPage)
	assert.Equal(t, 4, job.EndPage)
	assert.Empty(t, job.VoiceID)

	body, err := f.storage.Download(ctx, model.SourceKey(job.ReferenceKey, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(body))

	require.Len(t, f.dispatcher.created, 1)
	assert.Equal(t, 4, f.dispatcher.created[0].EndPage)
}

func TestSubmitPDF_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		req   model.PDFUpload
		field string
	}{
		{"path traversal", model.PDFUpload{FileContent: pdfBody(), FileName: "../x.pdf", StartPage: 1, EndPage: 1}, "fileName"},
		{"wrong extension", model.PDFUpload{FileContent: pdfBody(), FileName: "x.docx", StartPage: 1, EndPage: 1}, "fileName"},
		{"reversed range", model.PDFUpload{FileContent: pdfBody(), FileName: "x.pdf", StartPage: 3, EndPage: 2}, "endPage"},
		{"too many pages", model.PDFUpload{FileContent: pdfBody(), FileName: "x.pdf", StartPage: 1, EndPage: 6}, "endPage"},
		{"bad base64", model.PDFUpload{FileContent: "!!!", FileName: "x.pdf", StartPage: 1, EndPage: 1}, "fileContent"},
		{"too large", model.PDFUpload{FileContent: base64.StdEncoding.EncodeToString(make([]byte, 1025)), FileName: "x.pdf", StartPage: 1, EndPage: 1}, "fileContent"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newIntake(t)
			_, err := f.svc.SubmitPDF(context.Background(), "u", tc.req)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.field, ve.Field)
			assert.Empty(t, f.dispatcher.created)
		})
	}
}

func TestSubmitText_VoiceSelection(t *testing.T) {
	f := newIntake(t)
	job, err := f.svc.SubmitText(context.Background(), "u", model.TextUpload{Text: "hello", VoiceID: "Matthew"})
	require.NoError(t, err)
	assert.Equal(t, "Matthew", job.VoiceID)

	f = newIntake(t)
	_, err = f.svc.SubmitText(context.Background(), "u", model.TextUpload{Text: "hello", VoiceID: "Robot9"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "voice_id", ve.Field)

	keys, err := f.storage.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
	jobs, err := f.jobs.ListByOwner(context.Background(), "u")
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, f.dispatcher.created)
}

func TestSubmit_DispatchFailure(t *testing.T) {
	f := newIntake(t)
	f.dispatcher.err = errors.New("redis down")
	ctx := context.Background()

	_, err := f.svc.SubmitText(ctx, "u", model.TextUpload{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	// The job must not stay in Upload-Completed with nothing to move it.
	require.Len(t, f.dispatcher.created, 1)
	stored, err := f.jobs.Get(ctx, f.dispatcher.created[0].ReferenceKey)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSplitFailed, stored.Status)
	assert.Contains(t, stored.Error, "redis down")
}

func seedJob(t *testing.T, jobs store.JobStore, ref, owner string, kind model.InputKind, uploaded time.Time) {
	t.Helper()
	job := &model.Job{
		ReferenceKey:   ref,
		Owner:          owner,
		InputType:      kind,
		Language:       "english",
		Status:         model.StatusUploadCompleted,
		UploadDateTime: uploaded,
	}
	if kind == model.InputPDF {
		job.FileName = "doc.pdf"
	} else {
		job.Text = strings.Repeat("é", 120)
	}
	require.NoError(t, jobs.Create(context.Background(), job))
}

func TestTrackService_ListOnlyOwnJobs(t *testing.T) {
	jobs := store.NewMemoryStore()
	svc := NewTrackService(jobs, client.NewMemoryStorage("tts-bucket"))
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	seedJob(t, jobs, "ref-1", "ana", model.InputPDF, base)
	seedJob(t, jobs, "ref-2", "ana", model.InputText, base.Add(time.Hour))
	seedJob(t, jobs, "ref-3", "bob", model.InputText, base)

	resp, err := svc.List(context.Background(), "ana")
	require.NoError(t, err)
	require.Len(t, resp.Requests, 2)

	assert.Equal(t, "ref-2", resp.Requests[0].ReferenceKey)
	assert.Equal(t, strings.Repeat("é", 100)+"...", resp.Requests[0].Text)
	assert.Empty(t, resp.Requests[0].FileName)

	assert.Equal(t, "ref-1", resp.Requests[1].ReferenceKey)
	assert.Equal(t, "doc.pdf", resp.Requests[1].FileName)
	assert.Empty(t, resp.Requests[1].Text)
}

func TestTrackService_ListEmpty(t *testing.T) {
	svc := NewTrackService(store.NewMemoryStore(), client.NewMemoryStorage("b"))
	resp, err := svc.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, resp.Requests)
	assert.Empty(t, resp.Requests)
}

func TestTrackService_PresignDownload(t *testing.T) {
	jobs := store.NewMemoryStore()
	svc := NewTrackService(jobs, client.NewMemoryStorage("tts-bucket"))
	seedJob(t, jobs, "ref-1", "ana", model.InputText, time.Now())

	resp, err := svc.PresignDownload(context.Background(), "ana", "ref-1")
	require.NoError(t, err)
	assert.Contains(t, resp.PresignedURL, model.AudioKey("ref-1"))
	assert.Contains(t, resp.PresignedURL, "expires=3600")

	_, err = svc.PresignDownload(context.Background(), "bob", "ref-1")
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = svc.PresignDownload(context.Background(), "ana", "missing")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	assert.Equal(t, strings.Repeat("x", 100), preview(strings.Repeat("x", 100)))
	assert.Equal(t, strings.Repeat("x", 100)+"...", preview(strings.Repeat("x", 101)))
}

func TestProfileService_SaveKeepsCreatedAt(t *testing.T) {
	svc := NewProfileService(store.NewMemoryProfileStore())
	ctx := context.Background()
	id := Identity{UserID: "sub-1", Email: "ana@example.com", Username: "ana"}

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }
	_, err := svc.Save(ctx, id, model.ProfileRequest{PhoneNumber: "+15555550100"})
	require.NoError(t, err)

	second := first.Add(48 * time.Hour)
	svc.now = func() time.Time { return second }
	p, err := svc.Save(ctx, id, model.ProfileRequest{Preferences: map[string]string{"voice": "Joanna"}})
	require.NoError(t, err)

	assert.Equal(t, first, p.CreatedAt)
	assert.Equal(t, second, p.UpdatedAt)
	assert.Empty(t, p.PhoneNumber)
	assert.Equal(t, "Joanna", p.Preferences["voice"])

	got, err := svc.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, *p, *got)
}

func TestProfileService_GetMissing(t *testing.T) {
	svc := NewProfileService(store.NewMemoryProfileStore())
	_, err := svc.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}
