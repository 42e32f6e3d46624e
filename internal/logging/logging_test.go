package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fairplay/internal/config"
)

func TestSetupLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	Setup(&buf, config.LogConfig{Level: "warn"})
	log.Info().Msg("hidden")
	log.Warn().Str("component", "test").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, `"component":"test"`) {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestSetupBadLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	Setup(&buf, config.LogConfig{Level: "chatty"})
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("level = %s, want info", zerolog.GlobalLevel())
	}
}

func TestSetupSampling(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	Setup(&buf, config.LogConfig{Level: "info", SampleEvery: 5})
	for i := 0; i < 10; i++ {
		log.Info().Msg("tick")
	}
	if n := strings.Count(buf.String(), "tick"); n != 2 {
		t.Errorf("sampled %d lines, want 2", n)
	}
}
