package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

type testLogger struct {
	entries []string
}

func (l *testLogger) Info(_ map[string]any, msg string)  { l.entries = append(l.entries, "INFO:"+msg) }
func (l *testLogger) Error(_ map[string]any, msg string) { l.entries = append(l.entries, "ERROR:"+msg) }
func (l *testLogger) Debug(_ map[string]any, msg string) { l.entries = append(l.entries, "DEBUG:"+msg) }
func (l *testLogger) Warn(_ map[string]any, msg string)  { l.entries = append(l.entries, "WARN:"+msg) }
func (l *testLogger) Panic(_ map[string]any, msg string) {}
func (l *testLogger) Fatal(_ map[string]any, msg string) {}

func TestActualZapLogger(t *testing.T) {
	Debug(map[string]any{
		"rule":   "r-1",
		"domain": "example.com",
		"allow":  true,
	}, "test debug")
	Info(nil, "test info")
	Warn(nil, "test warn")
	Error(nil, "test error")
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic, but none occurred")
		}
	}()
	Panic(nil, "test panic")
}

func TestSetLoggerAndGlobalLogging(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)
	tlog := &testLogger{}
	SetLogger(tlog)

	Info(nil, "info msg")
	Error(nil, "error msg")
	Debug(nil, "debug msg")
	Warn(nil, "warn msg")

	expected := []string{
		"INFO:info msg",
		"ERROR:error msg",
		"DEBUG:debug msg",
		"WARN:warn msg",
	}
	if len(tlog.entries) != len(expected) {
		t.Fatalf("expected %d log entries, got %d", len(expected), len(tlog.entries))
	}
	for i, msg := range expected {
		if tlog.entries[i] != msg {
			t.Errorf("expected log[%d] = %q, got %q", i, msg, tlog.entries[i])
		}
	}
}

func TestConfigure_ValidLevels(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	if err := Configure("dev", "debug", FileOptions{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Configure("prod", "info", FileOptions{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfigure_InvalidLevel(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	if err := Configure("dev", "notalevel", FileOptions{}); err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestConfigure_FileSink(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	path := filepath.Join(t.TempDir(), "famfilter.log")
	if err := Configure("prod", "info", FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	Info(map[string]any{"rule": "r-1"}, "written to file")
	Debug(nil, "filtered by level")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "written to file") || !strings.Contains(out, `"rule":"r-1"`) {
		t.Errorf("expected JSON entry in log file, got %q", out)
	}
	if strings.Contains(out, "filtered by level") {
		t.Errorf("debug entry should be filtered at info level")
	}
}

func TestNewZapConfig_Levels(t *testing.T) {
	cfg := newZapConfig(true, zapcore.WarnLevel)
	if cfg.Level.Level() != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %v", cfg.Level.Level())
	}
	if cfg.EncoderConfig.MessageKey != "msg" {
		t.Errorf("expected msg key, got %q", cfg.EncoderConfig.MessageKey)
	}
}

func TestNoopLogger_TestAllLevels(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)
	SetLogger(NewNoopLogger())

	Debug(nil, "debug message")
	Info(nil, "info message")
	Warn(nil, "warn message")
	Error(nil, "error message")
	Panic(nil, "panic message")
	Fatal(nil, "fatal message")
}
