package worker

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("COURTSIM_WORKER_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if workerDebugEnabled {
		logrus.WithField("component", "worker").Infof(format, args...)
	}
}
