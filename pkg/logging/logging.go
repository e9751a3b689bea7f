// Package logging builds the process logger and scrubs credentials from
// values that reach it.
package logging

import (
	"go.uber.org/zap"
)

// New constructs the root logger: human-readable console output for local
// development, JSON in every other environment.
func New(env string) (*zap.Logger, error) {
	switch env {
	case "local", "development":
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
