package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	dbg, err := New(true)
	if err != nil {
		t.Fatalf("New(true): %v", err)
	}
	if !dbg.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("debug logger should log at debug")
	}
	quiet, err := New(false)
	if err != nil {
		t.Fatalf("New(false): %v", err)
	}
	if quiet.Core().Enabled(zap.InfoLevel) || !quiet.Core().Enabled(zap.WarnLevel) {
		t.Fatalf("default logger should only log warnings and above")
	}
}
