package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"courtsim/internal/config"
)

// Setup configures the standard logrus logger from the log section.
func Setup(cfg config.LogConfig) {
	SetupTo(os.Stderr, cfg)
}

// SetupTo is Setup with an explicit destination.
func SetupTo(w io.Writer, cfg config.LogConfig) {
	logrus.SetOutput(w)
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
