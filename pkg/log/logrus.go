package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var _ Logger = (*logrusLogger)(nil)

// LogFileName is the file written inside the configured log directory.
const LogFileName = "console.log"

const defaultTimestampFormat = "2006/01/02 15:04:05.000000"

type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger creates and configures a new logger instance using logrus.
// It logs to stdout and, when logDir is set, also to logDir/console.log.
func NewLogrusLogger(logLevel string, logDir string) (Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(&LineFormatter{TimestampFormat: defaultTimestampFormat})

	out, err := openOutput(logDir)
	if err != nil {
		return nil, err
	}
	l.SetOutput(out)

	return &logrusLogger{entry: logrus.NewEntry(l)}, nil
}

// openOutput returns stdout, teed into logDir/console.log when logDir is set.
func openOutput(logDir string) (io.Writer, error) {
	if logDir == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory '%s': %w", logDir, err)
	}
	path := filepath.Join(logDir, LogFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file '%s': %w", path, err)
	}
	return io.MultiWriter(os.Stdout, file), nil
}

// Wrap adapts an existing logrus logger, e.g. a null logger from logrus/hooks/test.
func Wrap(l *logrus.Logger) Logger {
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) Fatalf(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// ComponentField is rendered as a bracketed prefix instead of a key=value pair.
const ComponentField = "component"

var levelTags = map[logrus.Level]string{
	logrus.TraceLevel: "TRC",
	logrus.DebugLevel: "DBG",
	logrus.InfoLevel:  "INF",
	logrus.WarnLevel:  "WRN",
	logrus.ErrorLevel: "ERR",
	logrus.FatalLevel: "FTL",
	logrus.PanicLevel: "PNC",
}

// LineFormatter writes one console line per entry:
//
//	2025/04/06 17:30:00.000000 [INF] [bridge] connected gen=3 url=ws://robot:9090
//
// Remaining fields follow the message sorted by key. Values containing
// spaces are quoted.
type LineFormatter struct {
	TimestampFormat string
}

// Format implements logrus.Formatter.
func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	layout := f.TimestampFormat
	if layout == "" {
		layout = defaultTimestampFormat
	}
	tag, ok := levelTags[entry.Level]
	if !ok {
		tag = "???"
	}
	fmt.Fprintf(b, "%s [%s] ", entry.Time.Format(layout), tag)

	if component, ok := entry.Data[ComponentField]; ok {
		fmt.Fprintf(b, "[%v] ", component)
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != ComponentField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(entry.Data[k])
		if strings.ContainsAny(v, " \t") {
			v = strconv.Quote(v)
		}
		fmt.Fprintf(b, " %s=%s", k, v)
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
