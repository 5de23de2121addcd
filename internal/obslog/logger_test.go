package obslog

import "testing"

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
		Level(99):  "UNKNOWN",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Fatalf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	l := NewNoOpLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	l.SetLevel(LevelError)
}

func TestDefaultLoggerSwap(t *testing.T) {
	original := GetDefault()
	defer SetDefault(original)

	noop := NewNoOpLogger()
	SetDefault(noop)
	if GetDefault() != Logger(noop) {
		t.Fatal("GetDefault did not return the logger set by SetDefault")
	}
	Info("should not panic: %d", 1)
}

func TestZerologLoggerDoesNotPanic(t *testing.T) {
	l := NewLogger("test", LevelDebug)
	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)
	l.SetLevel(LevelWarn)
}
