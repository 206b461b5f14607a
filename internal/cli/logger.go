package cli

import (
	"fmt"

	"go.uber.org/zap"
)

// newLogger builds the logger for --log-format: console, json or none.
func newLogger(format string) (*zap.Logger, error) {
	switch format {
	case "console":
		return zap.NewDevelopment()
	case "json":
		return zap.NewProduction()
	case "none":
		return zap.NewNop(), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be console, json or none", format)
	}
}
