package command

import (
	"cloud.google.com/go/compute/metadata"
	"github.com/blendle/zapdriver"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds a production logger, switching to the Cloud Logging format
// when running on Google Compute Engine. The GCP project ID is returned so that
// request logs can be correlated with traces, it's empty outside of GCE.
func newLogger(level string) (*zap.Logger, string, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, "", err
	}

	var (
		config       zap.Config
		gcpProjectID string
	)

	if metadata.OnGCE() {
		config = zapdriver.NewProductionConfig()

		gcpProjectID, err = metadata.ProjectID()
		if err != nil {
			gcpProjectID = ""
		}
	} else {
		config = zap.NewProductionConfig()
	}

	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, "", err
	}

	return logger, gcpProjectID, nil
}
