package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

type SpiceLogger struct {
	zerolog.Logger
}

// Track is a convenience function to track time spent
func (l *SpiceLogger) Track(msg string) (string, time.Time) {
	return msg, time.Now()
}

// Duration logs a debug message with the time elapsed between now and start.
func (l *SpiceLogger) Duration(msg string, start time.Time) {
	l.Debug().Msgf("%v elapsed time: %v", msg, time.Since(start))
}

var Logger = &SpiceLogger{
	zerolog.New(os.Stderr).With().Timestamp().Logger(),
}

// enable pretty printing for interactive terminals and json for production.
func init() {
	// for tty terminal enable pretty logs
	if isatty.IsTerminal(os.Stdout.Fd()) && runtime.GOOS != "windows" {
		Logger.Logger = Logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		// UNIX Time is faster and smaller than most timestamps
		// If you set zerolog.TimeFieldFormat to an empty string,
		// logs will write with UNIX time.
		zerolog.TimeFieldFormat = ""
	}
	// by default only log warnings and above
	Logger.Logger = Logger.Level(zerolog.WarnLevel)
}

// SetLogLevel sets the log level of the package logger.
// Valid levels are "trace", "debug", "info", "warn", "error", "fatal", "panic" and "disabled".
func SetLogLevel(l string) error {
	level, err := zerolog.ParseLevel(l)
	if err != nil {
		return err
	}
	Logger.Logger = Logger.Level(level)
	return nil
}

// SetLogOutput sets the destination of log messages.
func SetLogOutput(w io.Writer) {
	Logger.Logger = Logger.Output(w)
}

// Sets log to trace. -1
// You must call Msg on the returned event in order to send the event.
func Trace() *zerolog.Event {
	return Logger.Trace()
}

// Sets log to debug. 0
// You must call Msg on the returned event in order to send the event.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Sets log to info. 1
// You must call Msg on the returned event in order to send the event.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Sets log to warn. 2
// You must call Msg on the returned event in order to send the event.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Sets log to error. 3
// You must call Msg on the returned event in order to send the event.
func Error() *zerolog.Event {
	return Logger.Error()
}

// Err starts a new message with error level with err as a field if not nil or with info level if err is nil.
func Err(err error) *zerolog.Event {
	return Logger.Err(err)
}

// Track is a convenience function to track time spent
func Track(msg string) (string, time.Time) {
	return msg, time.Now()
}

// Duration logs a debug message with the time elapsed between now and start.
func Duration(msg string, start time.Time) {
	Logger.Debug().Msgf("%v elapsed time: %v", msg, time.Since(start))
}

// WithContext returns a logger which includes the correlation id and query id
// as fields on every message.
func WithContext(correlationId string, queryId string) *SpiceLogger {
	return &SpiceLogger{Logger.With().Str("corrId", correlationId).Str("queryId", queryId).Logger()}
}

// LeveledLogger adapts SpiceLogger to the leveled logger interface used by
// the retrying http client.
type LeveledLogger struct {
	l *SpiceLogger
}

// NewLeveledLogger returns an adapter writing to l, or to the package logger when l is nil.
func NewLeveledLogger(l *SpiceLogger) *LeveledLogger {
	if l == nil {
		l = Logger
	}
	return &LeveledLogger{l: l}
}

func (ll *LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	withFields(ll.l.Error(), keysAndValues).Msg(msg)
}

func (ll *LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	withFields(ll.l.Info(), keysAndValues).Msg(msg)
}

func (ll *LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	withFields(ll.l.Debug(), keysAndValues).Msg(msg)
}

func (ll *LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	withFields(ll.l.Warn(), keysAndValues).Msg(msg)
}

func withFields(e *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		e = e.Interface(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1])
	}
	return e
}
