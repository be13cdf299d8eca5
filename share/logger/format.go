package logger

import (
	"bytes"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006/01/02 15:04:05"

// lineFormatter writes "2006/01/02 15:04:05 level: prefix: message" with the message unquoted.
type lineFormatter struct{}

func (lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(entry.Time.Format(timestampFormat))
	b.WriteByte(' ')
	b.WriteString(entry.Level.String())
	b.WriteString(": ")
	b.WriteString(entry.Message)
	if n := len(entry.Message); n == 0 || entry.Message[n-1] != '\n' {
		b.WriteByte('\n')
	}
	return b.Bytes(), nil
}
