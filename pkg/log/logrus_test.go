package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestSimpleFormatterLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("debug", &buf)

	logger.WithField("topic", "/gps/fix").WithField("count", 3).Infof("received %s", "fix")

	line := buf.String()
	if !strings.Contains(line, "[INF] received fix") {
		t.Errorf("Expected level and message in line, got %q", line)
	}
	if !strings.HasSuffix(line, " count=3 topic=/gps/fix\n") {
		t.Errorf("Expected sorted fields at end of line, got %q", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("warn", &buf)

	logger.Infof("hidden")
	logger.Warnf("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("Expected info line to be filtered at warn level, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[WAR] shown") {
		t.Errorf("Expected warn line, got %q", buf.String())
	}
}

func TestNewLogrusLoggerCreatesDir(t *testing.T) {
	dir := t.TempDir() + "/logs"
	logger, err := NewLogrusLogger("info", FileOptions{Dir: dir, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewLogrusLogger failed: %v", err)
	}
	logger.Infof("hello")
}
