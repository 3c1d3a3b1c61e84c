// Package logging constructs the process-wide zap logger and provides
// helpers that keep credentials out of log output.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the root logger for the given environment. Production gets
// JSON output at info level; anything else gets the console encoder at
// debug level.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
