package eventlog

import (
	"context"
	"runtime"

	"github.com/openrport/rguard/client/system"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

// DefaultSources returns the sources read when none are configured.
func DefaultSources(goos string) []string {
	switch goos {
	case "linux":
		return []string{"system", "kernel"}
	case "windows":
		return []string{"System", "Application", "Security"}
	}
	return nil
}

// NewPlatformReader returns the SourceReader for the running OS.
func NewPlatformReader(runner system.CmdRunner, logger *logger.Logger) SourceReader {
	switch runtime.GOOS {
	case "linux":
		return NewJournalReader(runner, logger)
	case "windows":
		return NewWevtutilReader(runner, logger)
	}
	return unsupportedReader{}
}

type unsupportedReader struct{}

func (unsupportedReader) Read(ctx context.Context, source string, max int) ([]models.EventItem, error) {
	return nil, ErrSourceUnsupported
}
