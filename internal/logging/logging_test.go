package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWriterLevels(t *testing.T) {
	tests := []struct {
		verbose   bool
		wantDebug bool
	}{
		{false, false},
		{true, true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		log := NewWriter(&buf, tt.verbose)
		log.Debug("outer iteration")
		log.Info("solved")
		_ = log.Sync()

		out := buf.String()
		if got := strings.Contains(out, "outer iteration"); got != tt.wantDebug {
			t.Errorf("verbose=%v: debug shown = %v", tt.verbose, got)
		}
		if !strings.Contains(out, "solved") {
			t.Errorf("verbose=%v: info line missing", tt.verbose)
		}
	}
}

func TestNew(t *testing.T) {
	log, err := New(false)
	if err != nil {
		t.Fatal(err)
	}
	if log.Core().Enabled(-1) {
		t.Error("debug should be disabled without verbose")
	}
}
