package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"voxrelay/internal/responder"
	"voxrelay/internal/tts"
	"voxrelay/pkg/audioconv"
)

const DefaultURL = "ws://localhost:8080/ws"

var logLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

type Config struct {
	EnvFile  string
	URL      string
	Proxy    string
	LogLevel string
	Workdir  string

	APIKey  string
	BaseURL string

	Model        string
	SystemPrompt string
	// HistoryTurns of zero turns conversation memory off.
	HistoryTurns int

	Voice      bool
	TTSModel   string
	TTSVoice   string
	TTSFormat  string
	TTSSpeed   float64
	FFmpeg     string
	Codec      string
	Bitrate    string
	SampleRate int

	ResponderTimeout time.Duration
	SynthTimeout     time.Duration

	GroupSuffix string
}

// Load parses args, loads the env file and reads the environment.
// Flags win over environment variables.
func Load(args []string) (Config, error) {
	fs := cli.NewFlagSet("voxrelay", cli.ContinueOnError)

	envFile := fs.StringP("env", "e", ".env", "Env file path")
	url := fs.StringP("url", "u", DefaultURL, "Url of event source")
	proxyAddr := fs.StringP("proxy", "p", "", "Socks Proxy Address for API calls")
	logLevel := fs.StringP("log", "l", "info", "Log level")
	workdir := fs.StringP("workdir", "w", "", "Parent dir for temporary audio files")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Missing env file is fine: everything may come from the environment.
	_ = godotenv.Load(*envFile)

	cfg := Config{
		EnvFile:  *envFile,
		URL:      *url,
		Proxy:    *proxyAddr,
		LogLevel: strings.ToLower(*logLevel),
		Workdir:  *workdir,

		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),

		Model:        envOr("RELAY_MODEL", "gpt-4o-mini"),
		SystemPrompt: os.Getenv("RELAY_SYSTEM_PROMPT"),

		TTSModel:  envOr("RELAY_TTS_MODEL", "tts-1"),
		TTSVoice:  envOr("RELAY_TTS_VOICE", "alloy"),
		TTSFormat: envOr("RELAY_TTS_FORMAT", "mp3"),
		FFmpeg:    envOr("RELAY_FFMPEG", "ffmpeg"),
		Codec:     envOr("RELAY_CODEC", "opus"),
		Bitrate:   envOr("RELAY_BITRATE", "64k"),

		GroupSuffix: envOr("RELAY_GROUP_SUFFIX", "@g.us"),
	}

	if !fs.Changed("url") {
		if v := os.Getenv("RELAY_URL"); v != "" {
			cfg.URL = v
		}
	}
	if !fs.Changed("proxy") {
		cfg.Proxy = envOr("RELAY_PROXY", cfg.Proxy)
	}

	var errs []error
	var err error

	if cfg.HistoryTurns, err = envInt("RELAY_HISTORY", responder.DefaultMaxTurns); err != nil {
		errs = append(errs, err)
	}
	if cfg.SampleRate, err = envInt("RELAY_SAMPLE_RATE", 48000); err != nil {
		errs = append(errs, err)
	}
	if cfg.TTSSpeed, err = envFloat("RELAY_TTS_SPEED", 1.0); err != nil {
		errs = append(errs, err)
	}
	if cfg.Voice, err = envBool("RELAY_VOICE", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.ResponderTimeout, err = envDuration("RELAY_RESPONDER_TIMEOUT", 60*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.SynthTimeout, err = envDuration("RELAY_SYNTH_TIMEOUT", 60*time.Second); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("OPENAI_API_KEY not set")
	}
	if c.URL == "" {
		return errors.New("event source url is empty")
	}
	if !logLevels[c.LogLevel] {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("RELAY_HISTORY must not be negative, got %d", c.HistoryTurns)
	}
	if c.ResponderTimeout < 0 || c.SynthTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Voice {
		return c.validateVoice()
	}
	return nil
}

// validateVoice checks the settings only the voice pipeline reads.
func (c Config) validateVoice() error {
	if c.TTSSpeed < 0.25 || c.TTSSpeed > 4.0 {
		return fmt.Errorf("RELAY_TTS_SPEED must be between 0.25 and 4.0, got %g", c.TTSSpeed)
	}
	if err := (tts.Config{Format: c.TTSFormat, Speed: c.TTSSpeed}).Validate(); err != nil {
		return fmt.Errorf("RELAY_TTS_FORMAT: %w", err)
	}
	if c.Codec != "opus" && c.Codec != "vorbis" {
		return fmt.Errorf("RELAY_CODEC must be opus or vorbis, got %q", c.Codec)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("RELAY_SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	opt := audioconv.Options{
		Codec:      audioconv.Codec(c.Codec),
		Bitrate:    c.Bitrate,
		SampleRate: c.SampleRate,
	}
	if err := opt.Validate(); err != nil {
		return fmt.Errorf("audio settings: %w", err)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
