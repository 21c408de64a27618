package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

const (
	DefaultModel  = "tts-1"
	DefaultVoice  = "alloy"
	DefaultFormat = "mp3"
	DefaultSpeed  = 1.0
)

var formats = map[string]openai.AudioSpeechNewParamsResponseFormat{
	"mp3":  openai.AudioSpeechNewParamsResponseFormatMP3,
	"opus": openai.AudioSpeechNewParamsResponseFormatOpus,
	"aac":  openai.AudioSpeechNewParamsResponseFormatAAC,
	"flac": openai.AudioSpeechNewParamsResponseFormatFLAC,
	"wav":  openai.AudioSpeechNewParamsResponseFormatWAV,
	"pcm":  openai.AudioSpeechNewParamsResponseFormatPCM,
}

type Config struct {
	Model  string
	Voice  string
	Format string  // response_format of /audio/speech
	Speed  float64 // 0.25 .. 4.0
}

func (c Config) Validate() error {
	if _, ok := formats[c.Format]; c.Format != "" && !ok {
		return fmt.Errorf("unsupported speech format %q", c.Format)
	}
	if c.Speed != 0 && (c.Speed < 0.25 || c.Speed > 4.0) {
		return fmt.Errorf("speed must be between 0.25 and 4.0, got %g", c.Speed)
	}
	return nil
}

// Speaker turns text into encoded audio with a fixed voice, speed and format.
type Speaker struct {
	client openai.Client
	cfg    Config
}

func NewSpeaker(client openai.Client, cfg Config) (*Speaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.Speed == 0 {
		cfg.Speed = DefaultSpeed
	}

	return &Speaker{client: client, cfg: cfg}, nil
}

// Format is the file extension of what Speak writes.
func (s *Speaker) Format() string { return s.cfg.Format }

// Speak synthesizes text and streams the audio into w.
func (s *Speaker) Speak(ctx context.Context, text string, w io.Writer) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("text cannot be empty")
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.cfg.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.cfg.Voice),
		ResponseFormat: formats[s.cfg.Format],
		Speed:          openai.Float(s.cfg.Speed),
	})
	if err != nil {
		return fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("read speech: %w", err)
	}
	if n == 0 {
		return errors.New("empty speech response")
	}

	log.Debug("Synthesized speech", "voice", s.cfg.Voice, "format", s.cfg.Format, "bytes", n)
	return nil
}
