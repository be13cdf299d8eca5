package middleware

import (
	"fmt"

	"github.com/openrport/rguard/share/logger"
)

// RecoveryLogger lets gorilla's recovery handler write panics to our logger.
type RecoveryLogger struct {
	*logger.Logger
}

func NewRecoveryLogger(l *logger.Logger) *RecoveryLogger {
	return &RecoveryLogger{
		Logger: l,
	}
}

func (l *RecoveryLogger) Println(v ...interface{}) {
	l.Errorf("%s", fmt.Sprint(v...))
}
