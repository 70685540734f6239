package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel(LevelInfo)
	})

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	got := buf.String()
	if strings.Contains(got, "debug 1") || strings.Contains(got, "info 2") {
		t.Errorf("mensagens abaixo do nível não deveriam ser escritas: %q", got)
	}
	if !strings.Contains(got, "[WARNING] - ") || !strings.Contains(got, "warn 3") {
		t.Errorf("esperava linha de warning, obtido %q", got)
	}
	if !strings.Contains(got, "[ERROR] - ") || !strings.Contains(got, "error 4") {
		t.Errorf("esperava linha de erro, obtido %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("cores não deveriam ser usadas fora do terminal: %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" warn ", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
