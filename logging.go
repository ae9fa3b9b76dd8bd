package corort

import (
	"log/slog"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// slogEvent adapts a logiface event onto a single log/slog record. It is
// grounded on the NewEvent/Write/ReleaseEvent triad that logiface-slog uses
// to bridge logiface's fluent builder onto a slog.Handler; written directly
// against the logiface package here rather than vendoring that adapter,
// whose retrieved sources carried inconsistent package declarations (see
// DESIGN.md).
type slogEvent struct {
	logiface.UnimplementedEvent
	level slog.Level
	logLv logiface.Level
	attrs []slog.Attr
	msg   string
	err   error
}

func (e *slogEvent) Level() logiface.Level { return e.logLv }

func (e *slogEvent) AddField(key string, val any) {
	e.attrs = append(e.attrs, slog.Any(key, val))
}

func (e *slogEvent) AddMessage(msg string) bool { e.msg = msg; return true }
func (e *slogEvent) AddError(err error) bool {
	e.err = err
	e.attrs = append(e.attrs, slog.Any("error", err))
	return true
}
func (e *slogEvent) AddString(key, val string) bool       { e.attrs = append(e.attrs, slog.String(key, val)); return true }
func (e *slogEvent) AddInt(key string, val int) bool      { e.attrs = append(e.attrs, slog.Int(key, val)); return true }
func (e *slogEvent) AddInt64(key string, val int64) bool  { e.attrs = append(e.attrs, slog.Int64(key, val)); return true }
func (e *slogEvent) AddUint64(key string, val uint64) bool {
	e.attrs = append(e.attrs, slog.Uint64(key, val))
	return true
}
func (e *slogEvent) AddBool(key string, val bool) bool { e.attrs = append(e.attrs, slog.Bool(key, val)); return true }
func (e *slogEvent) AddDuration(key string, val time.Duration) bool {
	e.attrs = append(e.attrs, slog.Duration(key, val))
	return true
}

func toSlogLevel(l logiface.Level) slog.Level {
	switch {
	case l >= logiface.LevelError:
		return slog.LevelError
	case l >= logiface.LevelWarning:
		return slog.LevelWarn
	case l >= logiface.LevelInformational:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// slogWriter implements logiface.EventFactory, logiface.Writer, and
// logiface.EventReleaser against a slog.Handler, reusing events via a pool.
type slogWriter struct {
	handler slog.Handler
	pool    sync.Pool
}

func newSlogWriter(handler slog.Handler) *slogWriter {
	return &slogWriter{
		handler: handler,
		pool:    sync.Pool{New: func() any { return &slogEvent{} }},
	}
}

func (w *slogWriter) NewEvent(level logiface.Level) *slogEvent {
	ev := w.pool.Get().(*slogEvent)
	ev.logLv = level
	ev.level = toSlogLevel(level)
	ev.attrs = ev.attrs[:0]
	ev.msg = ""
	ev.err = nil
	return ev
}

func (w *slogWriter) Write(ev *slogEvent) error {
	w.handler.Handle(nil, slog.NewRecord(time.Now(), ev.level, ev.msg, 0).AddAttrs(ev.attrs...))
	return nil
}

func (w *slogWriter) ReleaseEvent(ev *slogEvent) {
	w.pool.Put(ev)
}

// NewLogger returns a logiface.Logger that writes structured events to the
// given slog.Handler. It is the runtime's sole logging integration point:
// the scheduler and its I/O poller log through a *Logger supplied via
// [WithLogger], never via the standard library's log package directly.
// The worker pool and the stream packages do not log.
func NewLogger(handler slog.Handler) *logiface.Logger[*slogEvent] {
	w := newSlogWriter(handler)
	return logiface.New[*slogEvent](
		logiface.WithEventFactory[*slogEvent](w),
		logiface.WithWriter[*slogEvent](w),
		logiface.WithEventReleaser[*slogEvent](w),
		logiface.WithLevel[*slogEvent](logiface.LevelTrace),
	)
}

// NopLogger returns a logger that discards all events, used as the default
// when a scheduler is constructed without [WithLogger].
func NopLogger() *logiface.Logger[*slogEvent] {
	return NewLogger(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
