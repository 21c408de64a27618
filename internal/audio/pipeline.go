package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voxrelay/pkg/audioconv"
)

var (
	ErrSynthesis = errors.New("speech synthesis failed")
	ErrTranscode = errors.New("transcoding failed")
)

// Speaker writes synthesized speech for text into w.
type Speaker interface {
	Speak(ctx context.Context, text string, w io.Writer) error
	Format() string
}

type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
	Ext() string
}

// Artifact is a transcoded voice clip ready to hand to the channel.
type Artifact struct {
	Path     string
	Size     int64
	Duration time.Duration
}

type PipelineConfig struct {
	Speaker    Speaker
	Transcoder Transcoder
	// Root is the parent of the pipeline's private scratch directory.
	// Empty means the OS temp dir.
	Root string
	// Probe, when set, decodes both the synthesized and the transcoded file.
	Probe func(path string) (audioconv.Info, error)
	// Codec and SampleRate are what a probed artifact must report.
	Codec      audioconv.Codec
	SampleRate int
}

// Pipeline turns text into a codec-ready voice clip. It owns a private
// scratch directory and overwrites the same two files on every call, so
// calls are serialized.
type Pipeline struct {
	speaker    Speaker
	transcoder Transcoder
	probe      func(string) (audioconv.Info, error)
	codec      audioconv.Codec
	sampleRate int

	mu  sync.Mutex
	dir string
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Speaker == nil || cfg.Transcoder == nil {
		return nil, errors.New("speaker and transcoder are required")
	}

	dir, err := os.MkdirTemp(cfg.Root, "voxrelay-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	// The path is sent to the other endpoint, which may run elsewhere.
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	log.Debug("Audio scratch dir ready", "dir", dir)

	return &Pipeline{
		speaker:    cfg.Speaker,
		transcoder: cfg.Transcoder,
		probe:      cfg.Probe,
		codec:      cfg.Codec,
		sampleRate: cfg.SampleRate,
		dir:        dir,
	}, nil
}

func (p *Pipeline) Dir() string { return p.dir }

// Synthesize speaks text, transcodes the result and returns the clip.
// Failures wrap ErrSynthesis or ErrTranscode.
func (p *Pipeline) Synthesize(ctx context.Context, text string) (Artifact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Artifact{}, fmt.Errorf("%w: empty text", ErrSynthesis)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dir == "" {
		return Artifact{}, fmt.Errorf("%w: pipeline closed", ErrSynthesis)
	}

	src := filepath.Join(p.dir, "speech."+p.speaker.Format())
	dst := filepath.Join(p.dir, "voice"+p.transcoder.Ext())

	if err := p.speak(ctx, text, src); err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	defer os.Remove(src)

	if p.probe != nil {
		info, err := p.probe(src)
		switch {
		case errors.Is(err, audioconv.ErrUnsupported):
			log.Debug("Skipping probe of synthesized audio", "format", p.speaker.Format())
		case err != nil:
			return Artifact{}, fmt.Errorf("%w: undecodable speech: %w", ErrSynthesis, err)
		default:
			log.Debug("Synthesized audio", "format", info.Format, "rate", info.SampleRate, "duration", info.Duration)
		}
	}

	if err := p.transcoder.Transcode(ctx, src, dst); err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrTranscode, err)
	}

	art := Artifact{Path: dst}

	if p.probe != nil {
		info, err := p.probe(dst)
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: undecodable artifact: %w", ErrTranscode, err)
		}
		if err := p.check(info); err != nil {
			return Artifact{}, fmt.Errorf("%w: %w", ErrTranscode, err)
		}
		art.Duration = info.Duration
	}

	st, err := os.Stat(dst)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrTranscode, err)
	}
	if st.Size() == 0 {
		return Artifact{}, fmt.Errorf("%w: empty artifact", ErrTranscode)
	}
	art.Size = st.Size()

	return art, nil
}

func (p *Pipeline) speak(ctx context.Context, text, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := p.speaker.Speak(ctx, text, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	return f.Close()
}

func (p *Pipeline) check(info audioconv.Info) error {
	if p.codec != "" && info.Format != string(p.codec) {
		return fmt.Errorf("artifact codec %s, want %s", info.Format, p.codec)
	}
	if p.sampleRate != 0 && info.SampleRate != p.sampleRate {
		return fmt.Errorf("artifact sample rate %d, want %d", info.SampleRate, p.sampleRate)
	}
	return nil
}

// Close removes the scratch directory and everything in it.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dir == "" {
		return nil
	}

	err := os.RemoveAll(p.dir)
	p.dir = ""
	return err
}
