package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/model"
	"github.com/vocaldocs/api/internal/store"
)

// ErrNotReady means the text artifact arrived before the job reached
// Text-Ready. The event should be retried.
var ErrNotReady = errors.New("job not ready for synthesis")

// SynthesisOptions controls chunking and how chunks become the final file.
type SynthesisOptions struct {
	MaxChars int
	// ConcatChunks joins every chunk into the final audio. When false only
	// the first chunk is delivered.
	ConcatChunks bool
}

// Synthesizer converts a job's text artifact into the final MP3.
type Synthesizer struct {
	stage
	storage ObjectStore
	speaker Speaker
	opts    SynthesisOptions
}

func NewSynthesizer(jobs store.JobStore, storage ObjectStore, speaker Speaker, opts SynthesisOptions, notifier Notifier, log zerolog.Logger) *Synthesizer {
	if opts.MaxChars <= 0 {
		opts.MaxChars = 3000
	}
	return &Synthesizer{
		stage:   newStage("synthesize", jobs, notifier, log),
		storage: storage,
		speaker: speaker,
		opts:    opts,
	}
}

// Run handles an object-created event. Keys other than a text artifact
// are ignored.
func (s *Synthesizer) Run(ctx context.Context, ev model.ObjectCreatedEvent) error {
	ref, ok := model.ReferenceKeyFromTextKey(ev.Key)
	if !ok {
		s.log.Debug().Str("key", ev.Key).Msg("not a text artifact, ignoring")
		return nil
	}
	log := s.logger(ref)

	if err := checkBucket(s.storage, ev.Bucket); err != nil {
		return err
	}

	job, ok, err := s.load(ctx, ref, model.StatusTextReady, log)
	if err != nil {
		return err
	}
	if !ok {
		// The object notification can beat the status write that
		// precedes it. Finished and failed jobs stay a no-op.
		switch job.Status {
		case model.StatusUploadCompleted, model.StatusPagesReady:
			return fmt.Errorf("%w: job %s is %q", ErrNotReady, ref, job.Status)
		}
		return nil
	}

	return s.finish(ctx, job, model.StatusVoiceFailed, s.synthesize(ctx, job, ev.Key, log), log)
}

func (s *Synthesizer) synthesize(ctx context.Context, job *model.Job, textKey string, log zerolog.Logger) error {
	text, err := s.storage.Download(ctx, textKey)
	if err != nil {
		return fmt.Errorf("failed to fetch text artifact: %w", err)
	}

	chunks, err := SplitText(string(text), s.opts.MaxChars)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrEmptyText
	}

	voice := s.voiceFor(job)
	chunkKeys := make([]string, 0, len(chunks))
	defer func() { s.cleanup(ctx, chunkKeys, log) }()

	var joined bytes.Buffer
	for i, chunk := range chunks {
		audio, err := s.speaker.Synthesize(ctx, chunk, voice.ID, voice.LanguageCode)
		if err != nil {
			return fmt.Errorf("failed to synthesize chunk %d of %d: %w", i+1, len(chunks), err)
		}
		key := model.ChunkKey(job.ReferenceKey, i)
		if err := s.storage.Upload(ctx, key, audio, "audio/mpeg"); err != nil {
			return fmt.Errorf("failed to store chunk %d: %w", i, err)
		}
		chunkKeys = append(chunkKeys, key)
		if s.opts.ConcatChunks {
			joined.Write(audio)
		}
	}

	audioKey := model.AudioKey(job.ReferenceKey)
	if s.opts.ConcatChunks {
		err = s.storage.Upload(ctx, audioKey, joined.Bytes(), "audio/mpeg")
	} else {
		if len(chunks) > 1 {
			log.Warn().Int("chunks", len(chunks)).Msg("only the first chunk is delivered, remaining audio is discarded")
		}
		err = s.storage.Copy(ctx, chunkKeys[0], audioKey)
	}
	if err != nil {
		return fmt.Errorf("failed to write final audio: %w", err)
	}

	_, _, err = s.advance(ctx, model.Transition{
		ReferenceKey: job.ReferenceKey,
		From:         model.StatusTextReady,
		To:           model.StatusVoiceReady,
		AudioKey:     audioKey,
	}, log)
	return err
}

// voiceFor honours a caller-chosen voice on TEXT jobs. A voice outside
// the known set falls back to the language default.
func (s *Synthesizer) voiceFor(job *model.Job) Voice {
	if v, ok := LookupVoice(job.VoiceID); ok {
		return v
	}
	return VoiceFor(job.Language)
}

func (s *Synthesizer) cleanup(ctx context.Context, keys []string, log zerolog.Logger) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to delete chunk")
		}
	}
}
