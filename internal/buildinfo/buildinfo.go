// Package buildinfo holds version data set at link time with
// -ldflags "-X github.com/and161185/s0-pulse-counter/internal/buildinfo.BuildVersion=...".
package buildinfo

import "go.uber.org/zap"

var (
	BuildVersion string
	BuildDate    string
	BuildCommit  string
)

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Fields returns the build data as key/value pairs for structured logging.
func Fields() []any {
	return []any{
		"version", orNA(BuildVersion),
		"date", orNA(BuildDate),
		"commit", orNA(BuildCommit),
	}
}

func LogBuildInfo(logger *zap.SugaredLogger) {
	logger.Infow("build info", Fields()...)
}
