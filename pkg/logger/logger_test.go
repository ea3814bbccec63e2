package logger

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestInitAndGet(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	ctx := context.Background()
	Get().Info(ctx, "service starting",
		String("addr", ":8080"),
		Int("workers", 4),
		Float64("ratio", 0.5),
		Duration("timeout", 250*time.Millisecond),
		Any("extra", map[string]string{"k": "v"}),
	)
}

func TestNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	named := Named("cache")
	if named == nil {
		t.Fatal("named logger is nil")
	}

	named.Warn(context.Background(), "board evicted", String("key", "lb:club:c1:run"))
	named.Named("inner").Debug(context.Background(), "nested group")
}

func TestSetLevelString(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	cases := []struct {
		level   string
		wantErr bool
		want    slog.Level
	}{
		{"debug", false, slog.LevelDebug},
		{"info", false, slog.LevelInfo},
		{"", false, slog.LevelInfo},
		{"WARN", false, slog.LevelWarn},
		{"warning", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"verbose", true, 0},
	}

	for _, tc := range cases {
		err := SetLevelString(tc.level)
		if tc.wantErr {
			if err == nil {
				t.Errorf("SetLevelString(%q): expected error", tc.level)
			}
			continue
		}
		if err != nil {
			t.Errorf("SetLevelString(%q): unexpected error: %v", tc.level, err)
			continue
		}
		if got := levelVar.Level(); got != tc.want {
			t.Errorf("SetLevelString(%q): level = %v, want %v", tc.level, got, tc.want)
		}
	}
}
