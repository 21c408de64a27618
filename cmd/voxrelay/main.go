package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voxrelay/internal/audio"
	"voxrelay/internal/config"
	"voxrelay/internal/proxy"
	"voxrelay/internal/relay"
	"voxrelay/internal/responder"
	"voxrelay/internal/router"
	"voxrelay/internal/tts"
	"voxrelay/pkg/audioconv"
	"voxrelay/pkg/protocol"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	setLogger("info")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	setLogger(cfg.LogLevel)
	log.Info("Booting up")

	if err := run(cfg); err != nil {
		log.Error("Relay stopped", "err", err)
		os.Exit(1)
	}

	log.Info("Relay exited")
}

func setLogger(level string) {
	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[level],
		TimeFormat: time.DateTime,
	})))
}

func run(cfg config.Config) error {
	httpClient, err := proxy.NewHTTPClient(cfg.Proxy, 120*time.Second)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	log.Debug("Loaded API client", "proxy", cfg.Proxy != "")

	resp := responder.NewOpenAI(client, responder.Config{
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		MaxTurns:     cfg.HistoryTurns,
	})
	defer resp.Close()

	// Left as a nil interface when voice is off.
	var voice relay.Synthesizer
	if cfg.Voice {
		pipe, err := newPipeline(cfg, client)
		if err != nil {
			return err
		}
		defer pipe.Close()
		voice = pipe

		log.Debug("Loaded voice pipeline", "dir", pipe.Dir())
	} else {
		log.Info("Voice replies disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, err := protocol.Dial(ctx, cfg.URL)
	if err != nil {
		return err
	}
	defer ch.Close()

	log.Info("Boot up - successful", "url", ch.URL())

	d := relay.New(ch, router.New(cfg.GroupSuffix), resp, voice, relay.Options{
		ResponderTimeout: cfg.ResponderTimeout,
		SynthTimeout:     cfg.SynthTimeout,
	})

	err = d.Run(ctx)

	st := d.Stats()
	log.Info("Relay stats",
		"received", st.Received,
		"malformed", st.Malformed,
		"rejected", st.Rejected,
		"accepted", st.Accepted,
		"replied", st.Replied,
		"voiced", st.Voiced,
		"degraded", st.Degraded,
		"failed", st.Failed)

	if errors.Is(err, context.Canceled) {
		log.Info("Shutting down")
		return nil
	}
	return err
}

func newPipeline(cfg config.Config, client openai.Client) (*audio.Pipeline, error) {
	conv, err := audioconv.NewTranscoder(audioconv.Options{
		Tool:       cfg.FFmpeg,
		Codec:      audioconv.Codec(cfg.Codec),
		Bitrate:    cfg.Bitrate,
		SampleRate: cfg.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("transcoder: %w", err)
	}

	speaker, err := tts.NewSpeaker(client, tts.Config{
		Model:  cfg.TTSModel,
		Voice:  cfg.TTSVoice,
		Format: cfg.TTSFormat,
		Speed:  cfg.TTSSpeed,
	})
	if err != nil {
		return nil, fmt.Errorf("speaker: %w", err)
	}

	return audio.NewPipeline(audio.PipelineConfig{
		Speaker:    speaker,
		Transcoder: conv,
		Root:       cfg.Workdir,
		Probe:      audioconv.ProbeFile,
		Codec:      conv.Codec(),
		SampleRate: conv.SampleRate(),
	})
}
