package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// unsetEnv clears keys for the test and restores them afterwards.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

var allKeys = []string{
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "RELAY_URL", "RELAY_PROXY", "RELAY_MODEL",
	"RELAY_SYSTEM_PROMPT", "RELAY_HISTORY", "RELAY_TTS_MODEL", "RELAY_TTS_VOICE",
	"RELAY_TTS_FORMAT", "RELAY_TTS_SPEED", "RELAY_FFMPEG", "RELAY_CODEC", "RELAY_BITRATE",
	"RELAY_SAMPLE_RATE", "RELAY_RESPONDER_TIMEOUT", "RELAY_SYNTH_TIMEOUT",
	"RELAY_GROUP_SUFFIX", "RELAY_VOICE",
}

func noEnvFile(t *testing.T) []string {
	return []string{"--env", filepath.Join(t.TempDir(), "missing.env")}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, allKeys...)
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	cfg, err := Load(noEnvFile(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.URL != DefaultURL {
		t.Errorf("Expected default url, got %s", cfg.URL)
	}
	if cfg.LogLevel != "info" || cfg.Proxy != "" {
		t.Errorf("Unexpected flag defaults: %+v", cfg)
	}
	if !cfg.Voice || cfg.Codec != "opus" || cfg.Bitrate != "64k" || cfg.SampleRate != 48000 {
		t.Errorf("Unexpected audio defaults: %+v", cfg)
	}
	if cfg.TTSSpeed != 1.0 || cfg.TTSVoice != "alloy" || cfg.TTSFormat != "mp3" {
		t.Errorf("Unexpected speech defaults: %+v", cfg)
	}
	if cfg.ResponderTimeout != time.Minute || cfg.SynthTimeout != time.Minute {
		t.Errorf("Unexpected timeouts: %s %s", cfg.ResponderTimeout, cfg.SynthTimeout)
	}
	if cfg.HistoryTurns != 20 || cfg.GroupSuffix != "@g.us" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	unsetEnv(t, allKeys...)

	_, err := Load(noEnvFile(t))
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("Expected missing key error, got %v", err)
	}
}

func TestLoad_FlagsAndEnv(t *testing.T) {
	unsetEnv(t, allKeys...)
	t.Setenv("OPENAI_API_KEY", "test-api-key")
	t.Setenv("RELAY_URL", "ws://bridge:9000/ws")
	t.Setenv("RELAY_PROXY", "127.0.0.1:1080")
	t.Setenv("RELAY_VOICE", "false")
	t.Setenv("RELAY_TTS_SPEED", "1.5")
	t.Setenv("RELAY_SYNTH_TIMEOUT", "15s")
	t.Setenv("RELAY_CODEC", "vorbis")
	t.Setenv("RELAY_SAMPLE_RATE", "44100")

	cfg, err := Load(noEnvFile(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.URL != "ws://bridge:9000/ws" || cfg.Proxy != "127.0.0.1:1080" {
		t.Errorf("Env must apply when flags are not given: %+v", cfg)
	}
	if cfg.Voice || cfg.TTSSpeed != 1.5 || cfg.SynthTimeout != 15*time.Second {
		t.Errorf("Unexpected parsed values: %+v", cfg)
	}
	if cfg.Codec != "vorbis" || cfg.SampleRate != 44100 {
		t.Errorf("Unexpected codec settings: %+v", cfg)
	}

	args := append(noEnvFile(t), "-u", "ws://flag:1/ws", "-p", "", "-l", "DEBUG", "-w", "/var/tmp")
	cfg, err = Load(args)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.URL != "ws://flag:1/ws" {
		t.Errorf("Flag must win over RELAY_URL, got %s", cfg.URL)
	}
	if cfg.Proxy != "" {
		t.Errorf("Explicit empty proxy flag must win, got %s", cfg.Proxy)
	}
	if cfg.LogLevel != "debug" || cfg.Workdir != "/var/tmp" {
		t.Errorf("Unexpected flags: %+v", cfg)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	unsetEnv(t, allKeys...)

	path := filepath.Join(t.TempDir(), "relay.env")
	content := "OPENAI_API_KEY=from-file\nRELAY_TTS_VOICE=nova\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load([]string{"-e", path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIKey != "from-file" || cfg.TTSVoice != "nova" {
		t.Errorf("Expected values from env file, got %+v", cfg)
	}
	if cfg.EnvFile != path {
		t.Errorf("Expected env file %s, got %s", path, cfg.EnvFile)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"history":     {"RELAY_HISTORY", "many"},
		"speed":       {"RELAY_TTS_SPEED", "9"},
		"speed nan":   {"RELAY_TTS_SPEED", "fast"},
		"codec":       {"RELAY_CODEC", "mp3"},
		"voice":       {"RELAY_VOICE", "maybe"},
		"timeout":     {"RELAY_RESPONDER_TIMEOUT", "soon"},
		"neg":         {"RELAY_SYNTH_TIMEOUT", "-1s"},
		"rate":        {"RELAY_SAMPLE_RATE", "0"},
		"opus rate":   {"RELAY_SAMPLE_RATE", "44100"},
		"bitrate":     {"RELAY_BITRATE", "fast"},
		"tts format":  {"RELAY_TTS_FORMAT", "mid"},
		"neg history": {"RELAY_HISTORY", "-3"},
	}

	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			unsetEnv(t, allKeys...)
			t.Setenv("OPENAI_API_KEY", "test-api-key")
			t.Setenv(kv[0], kv[1])

			if _, err := Load(noEnvFile(t)); err == nil {
				t.Errorf("Expected error for %s=%s", kv[0], kv[1])
			}
		})
	}

	unsetEnv(t, allKeys...)
	t.Setenv("OPENAI_API_KEY", "test-api-key")
	if _, err := Load(append(noEnvFile(t), "--log", "loud")); err == nil {
		t.Error("Expected error for unknown log level")
	}
	if _, err := Load([]string{"--no-such-flag"}); err == nil {
		t.Error("Expected error for unknown flag")
	}
}

func TestLoad_TextOnlySkipsVoiceSettings(t *testing.T) {
	bad := map[string]string{
		"RELAY_CODEC":       "mp3",
		"RELAY_SAMPLE_RATE": "0",
		"RELAY_BITRATE":     "fast",
		"RELAY_TTS_FORMAT":  "mid",
		"RELAY_TTS_SPEED":   "9",
	}

	unsetEnv(t, allKeys...)
	t.Setenv("OPENAI_API_KEY", "test-api-key")
	t.Setenv("RELAY_VOICE", "false")
	for k, v := range bad {
		t.Setenv(k, v)
	}

	cfg, err := Load(noEnvFile(t))
	if err != nil {
		t.Fatalf("Voice settings must not block a text-only start: %v", err)
	}
	if cfg.Voice {
		t.Error("Expected voice disabled")
	}

	t.Setenv("RELAY_VOICE", "true")
	if _, err := Load(noEnvFile(t)); err == nil {
		t.Error("Expected voice settings to be checked when voice is on")
	}
}

func TestLoad_HistoryOff(t *testing.T) {
	unsetEnv(t, allKeys...)
	t.Setenv("OPENAI_API_KEY", "test-api-key")
	t.Setenv("RELAY_HISTORY", "0")

	cfg, err := Load(noEnvFile(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HistoryTurns != 0 {
		t.Errorf("Expected history off, got %d", cfg.HistoryTurns)
	}
}
