package main

import (
	"errors"
	"testing"
	"time"

	"voxrelay/internal/config"
	"voxrelay/pkg/audioconv"
)

func testConfig() config.Config {
	return config.Config{
		URL:              "ws://127.0.0.1:1/ws",
		LogLevel:         "info",
		APIKey:           "test-api-key",
		Voice:            true,
		TTSSpeed:         1.0,
		TTSFormat:        "mp3",
		FFmpeg:           "definitely-not-a-real-ffmpeg-binary",
		Codec:            "opus",
		Bitrate:          "64k",
		SampleRate:       48000,
		ResponderTimeout: time.Second,
		SynthTimeout:     time.Second,
	}
}

func TestRun_MissingTranscoderAbortsStartup(t *testing.T) {
	err := run(testConfig())
	if !errors.Is(err, audioconv.ErrToolMissing) {
		t.Fatalf("Expected ErrToolMissing before connecting, got %v", err)
	}
}

func TestRun_UnreachableEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.Voice = false

	if err := run(cfg); err == nil {
		t.Fatal("Expected connection error")
	}
}
