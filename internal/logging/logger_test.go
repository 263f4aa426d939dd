package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtsim/internal/config"
)

func TestSetupJSONAndLevel(t *testing.T) {
	defer SetupTo(&bytes.Buffer{}, config.LogConfig{})

	var buf bytes.Buffer
	SetupTo(&buf, config.LogConfig{Level: "warn", Format: "json"})

	logrus.Info("hidden")
	logrus.WithField("hearing_id", "h1").Warn("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "h1", entry["hearing_id"])
}

func TestSetupBadLevelFallsBackToInfo(t *testing.T) {
	defer SetupTo(&bytes.Buffer{}, config.LogConfig{})

	SetupTo(&bytes.Buffer{}, config.LogConfig{Level: "chatty"})
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}
