package logger

import (
	"context"
	"log"
	"log/slog"
	"strconv"
	"strings"
)

// NewSlogHandler returns a slog.Handler writing through l. A nil l yields a
// handler that discards everything.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		l = Nop()
	}
	return &slogHandler{log: l}
}

// ErrorLog returns a standard library logger for http.Server.ErrorLog that
// writes through l at warn level.
func ErrorLog(l *Logger) *log.Logger {
	return slog.NewLogLogger(NewSlogHandler(l), slog.LevelWarn)
}

type slogHandler struct {
	log *Logger
	// prefix is the dotted group path applied to later attributes.
	prefix string
	// attrs is the pre-rendered text of WithAttrs calls.
	attrs string
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return fromSlogLevel(level) >= h.log.GetLevel()
}

func (h *slogHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.prefix, a)
		return true
	})

	msg := b.String()
	switch fromSlogLevel(r.Level) {
	case LevelError:
		h.log.Error("%s", msg)
	case LevelWarn:
		h.log.Warn("%s", msg)
	case LevelInfo:
		h.log.Info("%s", msg)
	default:
		h.log.Debug("%s", msg)
	}
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		appendAttr(&b, h.prefix, a)
	}
	return &slogHandler{log: h.log, prefix: h.prefix, attrs: b.String()}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogHandler{log: h.log, prefix: h.prefix + name + ".", attrs: h.attrs}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// appendAttr writes " key=value", flattening groups into dotted keys.
func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, nested := range a.Value.Group() {
			appendAttr(b, prefix, nested)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	v := a.Value.String()
	if v == "" || strings.ContainsAny(v, " =\"\t\n") {
		v = strconv.Quote(v)
	}
	b.WriteString(v)
}
