package audioconv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os/exec"
	"strconv"
	"strings"
)

var (
	ErrToolMissing = errors.New("transcoding tool not available")
	ErrUnsupported = errors.New("unsupported audio format")
)

type Codec string

const (
	CodecOpus   Codec = "opus"
	CodecVorbis Codec = "vorbis"
)

var encoders = map[Codec]string{
	CodecOpus:   "libopus",
	CodecVorbis: "libvorbis",
}

// libopus only encodes at these rates.
var opusRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

type Options struct {
	Tool       string // path or name of ffmpeg
	Codec      Codec
	Bitrate    string // e.g. "64k"
	SampleRate int
	Channels   int
}

func (o Options) Validate() error {
	if _, ok := encoders[o.Codec]; !ok {
		return fmt.Errorf("unknown codec %q", o.Codec)
	}
	if o.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", o.SampleRate)
	}
	if o.Codec == CodecOpus && !opusRates[o.SampleRate] {
		return fmt.Errorf("opus does not support sample rate %d", o.SampleRate)
	}
	if !validBitrate(o.Bitrate) {
		return fmt.Errorf("invalid bitrate %q", o.Bitrate)
	}
	return nil
}

// Transcoder re-encodes audio files into an ogg container with fixed
// codec, bitrate and sample rate by running ffmpeg.
type Transcoder struct {
	path string
	opt  Options
}

// NewTranscoder resolves the tool on PATH. A missing tool is ErrToolMissing.
func NewTranscoder(opt Options) (*Transcoder, error) {
	if opt.Tool == "" {
		opt.Tool = "ffmpeg"
	}
	if opt.Codec == "" {
		opt.Codec = CodecOpus
	}
	if opt.Bitrate == "" {
		opt.Bitrate = "64k"
	}
	if opt.SampleRate == 0 {
		opt.SampleRate = 48000
	}
	if opt.Channels == 0 {
		opt.Channels = 1
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}

	path, err := exec.LookPath(opt.Tool)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrToolMissing, opt.Tool, err)
	}

	log.Debug("Resolved transcoder", "path", path, "codec", opt.Codec, "bitrate", opt.Bitrate, "rate", opt.SampleRate)
	return &Transcoder{path: path, opt: opt}, nil
}

func (t *Transcoder) Codec() Codec    { return t.opt.Codec }
func (t *Transcoder) SampleRate() int { return t.opt.SampleRate }
func (t *Transcoder) Ext() string     { return ".ogg" }

func (t *Transcoder) Args(src, dst string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-y",
		"-i", src,
		"-vn",
		"-c:a", encoders[t.opt.Codec],
		"-b:a", t.opt.Bitrate,
		"-ar", strconv.Itoa(t.opt.SampleRate),
		"-ac", strconv.Itoa(t.opt.Channels),
		dst,
	}
}

func (t *Transcoder) Transcode(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, t.path, t.Args(src, dst)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", t.path, err, msg)
		}
		return fmt.Errorf("%s: %w", t.path, err)
	}

	return nil
}

func validBitrate(s string) bool {
	s = strings.TrimSuffix(strings.ToLower(s), "k")
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}
