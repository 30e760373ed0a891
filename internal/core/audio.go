package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"governa.ai/boardroom/internal/provider"
	"governa.ai/boardroom/internal/store"
)

// FallbackPhrase is spoken when there is no text to synthesize.
const FallbackPhrase = "Am not clear about the context."

var audioExtPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,5}$`)

type AudioConfig struct {
	TranscriptionModel    string
	TranscriptionLanguage string
	SpeechModel           string
	SpeechVoice           string
	SpeechInstructions    string
	// VoiceLogUser is the username recorded with each voice exchange.
	VoiceLogUser string
}

// AudioService converts speech to text and back. It never touches the
// conversation context.
type AudioService struct {
	api       AudioAPI
	artifacts *ArtifactStore
	voiceLog  VoiceLog
	cfg       AudioConfig
	logger    *zap.Logger
}

func NewAudioService(api AudioAPI, artifacts *ArtifactStore, voiceLog VoiceLog, cfg AudioConfig, logger *zap.Logger) *AudioService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AudioService{
		api:       api,
		artifacts: artifacts,
		voiceLog:  voiceLog,
		cfg:       cfg,
		logger:    logger,
	}
}

// Transcribe writes the clip to a temporary file, which is removed when the
// call returns, and submits it for transcription. ext is the clip's file
// extension and defaults to .webm.
func (s *AudioService) Transcribe(ctx context.Context, r io.Reader, ext string) (text string, err error) {
	defer func() { audioOps.WithLabelValues("transcribe", result(err)).Inc() }()

	if !audioExtPattern.MatchString(ext) {
		ext = ".webm"
	}
	tmp, err := os.CreateTemp("", "audio-*"+strings.ToLower(ext))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: failed to save clip: %w", ErrTranscription, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	text, err = s.api.Transcribe(ctx, provider.TranscriptionRequest{
		AudioPath: tmp.Name(),
		Model:     s.cfg.TranscriptionModel,
		Language:  s.cfg.TranscriptionLanguage,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty transcription", ErrTranscription)
	}
	return text, nil
}

// Synthesize speaks text with voice (the configured voice when empty).
// Empty text is replaced by FallbackPhrase instead of failing.
func (s *AudioService) Synthesize(ctx context.Context, text, voice string) (artifact *AudioArtifact, err error) {
	defer func() { audioOps.WithLabelValues("synthesize", result(err)).Inc() }()

	if strings.TrimSpace(text) == "" {
		text = FallbackPhrase
	}
	if voice == "" {
		voice = s.cfg.SpeechVoice
	}

	data, err := s.api.Speech(ctx, provider.SpeechRequest{
		Model:        s.cfg.SpeechModel,
		Input:        text,
		Voice:        voice,
		Instructions: s.cfg.SpeechInstructions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrSynthesis)
	}

	artifact, err = s.artifacts.Write(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	s.logger.Debug("speech synthesized", zap.String("filename", artifact.Filename), zap.Int("bytes", len(data)))
	return artifact, nil
}

// OpenArtifact opens a previously synthesized file by name.
func (s *AudioService) OpenArtifact(name string) (*os.File, error) {
	return s.artifacts.Open(name)
}

// RecordExchange appends a voice exchange to the voice log. Failures are
// logged, never returned.
func (s *AudioService) RecordExchange(ctx context.Context, text, filename string) {
	if s.voiceLog == nil {
		return
	}
	rec := store.VoiceRecord{Username: s.cfg.VoiceLogUser, TranscribedText: text, Filename: filename}
	if err := s.voiceLog.AppendVoiceRecord(ctx, rec); err != nil {
		s.logger.Warn("failed to record voice exchange", zap.String("filename", filename), zap.Error(err))
	}
}
