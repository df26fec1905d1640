package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/timetrack/internal/config"
)

func TestParseTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-01-15T09:00:00Z", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), false},
		{"2024-01-15 09:00", time.Date(2024, 1, 15, 9, 0, 0, 0, ny), false},
		{"2024-01-15 09:00:30", time.Date(2024, 1, 15, 9, 0, 30, 0, ny), false},
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, ny), false},
		{"15/01/2024", time.Time{}, true},
	}

	for _, tt := range tests {
		got, err := parseTime(tt.in, ny)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSessionWindow(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	defer func() { recordStart, recordEnd, recordDuration = "", "", 0 }()

	recordStart, recordEnd, recordDuration = "", "", 25*time.Minute
	w, err := sessionWindow(time.UTC, now)
	if err != nil {
		t.Fatalf("sessionWindow() error = %v", err)
	}
	if w.Duration() != 25*time.Minute || w.End != now.UnixMilli() {
		t.Errorf("duration window = %v", w)
	}

	recordStart, recordEnd, recordDuration = "2024-01-15 08:00", "2024-01-15 09:15", 0
	w, err = sessionWindow(time.UTC, now)
	if err != nil {
		t.Fatalf("sessionWindow() error = %v", err)
	}
	if w.Duration() != 75*time.Minute {
		t.Errorf("explicit window = %v", w)
	}

	recordStart, recordEnd, recordDuration = "", "", 0
	if _, err := sessionWindow(time.UTC, now); err == nil {
		t.Error("expected error without --start or --duration")
	}
}

func TestDaemonLockPath(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{BindAddress: "127.0.0.1", APIPort: 7842},
		Storage: config.StorageConfig{Type: "bolt", Path: filepath.Join("data", "timetrack.bolt")},
	}
	if got := daemonLockPath(cfg); got != filepath.Join("data", "timetrack.bolt.lock") {
		t.Errorf("bolt lock path = %q", got)
	}

	cfg.Storage.Type = "redis"
	got := daemonLockPath(cfg)
	if !strings.HasSuffix(got, "timetrack-127.0.0.1_7842.lock") {
		t.Errorf("redis lock path = %q", got)
	}
}

func TestOpenStorage(t *testing.T) {
	store, err := openStorage(config.StorageConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("openStorage(memory) error = %v", err)
	}
	_ = store.Close()

	store, err = openStorage(config.StorageConfig{Type: "bolt", Path: filepath.Join(t.TempDir(), "tt.bolt")})
	if err != nil {
		t.Fatalf("openStorage(bolt) error = %v", err)
	}
	_ = store.Close()

	if _, err := openStorage(config.StorageConfig{Type: "sqlite"}); err == nil {
		t.Error("expected error for unsupported storage type")
	}
}

func TestParseDuration(t *testing.T) {
	if got := parseDuration("90s", time.Minute); got != 90*time.Second {
		t.Errorf("parseDuration(90s) = %v", got)
	}
	if got := parseDuration("soon", time.Minute); got != time.Minute {
		t.Errorf("parseDuration(soon) = %v, want fallback", got)
	}
}
