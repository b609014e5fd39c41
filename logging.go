package cfddns

import (
	"bytes"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

const timestampLayout = "2006-01-02 15:04:05"

var discard = newDiscardLogger()

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// NewConsoleLogger returns a logger that prints "[2006-01-02 15:04:05] message" lines in local time.
// Debug, info and warning lines go to stdout; errors go to stderr as "[2006-01-02 15:04:05 ERROR] message".
func NewConsoleLogger(stdout, stderr io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetFormatter(ConsoleFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.AddHook(&writer.Hook{
		Writer:    stdout,
		LogLevels: []logrus.Level{logrus.InfoLevel, logrus.WarnLevel, logrus.DebugLevel, logrus.TraceLevel},
	})
	l.AddHook(&writer.Hook{
		Writer:    stderr,
		LogLevels: []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel},
	})
	return l
}

// ConsoleFormatter is a logrus.Formatter for the console line format. Entry fields are not printed.
type ConsoleFormatter struct{}

func (ConsoleFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	b.WriteString(e.Time.Format(timestampLayout))
	switch {
	case e.Level <= logrus.ErrorLevel:
		b.WriteString(" ERROR] ")
	case e.Level == logrus.WarnLevel:
		b.WriteString("] Warning: ")
	default:
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}
