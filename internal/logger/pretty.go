package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"
	"unicode"

	"golang.org/x/term"
)

// SessionKey is the attribute key generation logs carry. The pretty handler
// shortens its value to a tag after the component.
const SessionKey = "session"

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[90m"
	ansiRed   = "\033[1;31m"
	ansiAmber = "\033[1;33m"
	ansiBlue  = "\033[1;34m"
	ansiGreen = "\033[32m"
	ansiCyan  = "\033[36m"
)

// PrettyHandler writes one line per record for people watching a terminal:
//
//	15:04:05.000 INF [runtime] model ready size="1.2 GB" mapped=true
//	15:04:05.213 DBG [generation] #1f3a9c2e session started prompt_tokens=4
//
// Colors are used only when the writer is a terminal and NO_COLOR is unset.
type PrettyHandler struct {
	level slog.Leveler
	color bool

	mu *sync.Mutex
	w  io.Writer

	prefix string // open groups, dot terminated
	attrs  []slog.Attr
}

// NewPrettyHandler returns a handler writing to w. A nil level means info.
func NewPrettyHandler(w io.Writer, level slog.Leveler) *PrettyHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &PrettyHandler{level: level, color: isTerminal(w), mu: new(sync.Mutex), w: w}
}

func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var component, session string
	rest := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	collect := func(a slog.Attr) bool {
		switch {
		case a.Key == ComponentKey:
			component = a.Value.String()
		case a.Key == SessionKey:
			session = a.Value.String()
		case a.Equal(slog.Attr{}):
		default:
			rest = append(rest, a)
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		return collect(h.qualify(a))
	})

	b := make([]byte, 0, 256)
	b = h.paint(b, ansiDim, r.Time.AppendFormat(nil, "15:04:05.000"))
	b = append(b, ' ')
	color, tag := levelStyle(r.Level)
	b = h.paint(b, color, []byte(tag))
	b = append(b, ' ')
	if component != "" {
		b = h.paint(b, ansiGreen, []byte("["+component+"]"))
		b = append(b, ' ')
	}
	if session != "" {
		b = h.paint(b, ansiDim, []byte("#"+shortID(session)))
		b = append(b, ' ')
	}
	b = append(b, r.Message...)

	for _, a := range rest {
		b = append(b, ' ')
		if h.color {
			b = append(b, ansiCyan...)
		}
		b = appendAttr(b, a)
		if h.color {
			b = append(b, ansiReset...)
		}
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(b)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		c.attrs = append(c.attrs, h.qualify(a))
	}
	return &c
}

// qualify prefixes a's key with the open groups. Attributes stored before a
// group was opened are never requalified.
func (h *PrettyHandler) qualify(a slog.Attr) slog.Attr {
	if h.prefix == "" || a.Key == "" {
		return a
	}
	return slog.Attr{Key: h.prefix + a.Key, Value: a.Value}
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func (h *PrettyHandler) paint(b []byte, color string, s []byte) []byte {
	if !h.color {
		return append(b, s...)
	}
	b = append(b, color...)
	b = append(b, s...)
	return append(b, ansiReset...)
}

func levelStyle(l slog.Level) (color, tag string) {
	switch {
	case l >= slog.LevelError:
		return ansiRed, "ERR"
	case l >= slog.LevelWarn:
		return ansiAmber, "WRN"
	case l >= slog.LevelInfo:
		return ansiBlue, "INF"
	default:
		return ansiDim, "DBG"
	}
}

// shortID keeps the first block of a UUID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// appendAttr renders key=value, flattening groups into dotted keys.
func appendAttr(b []byte, a slog.Attr) []byte {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for i, ga := range v.Group() {
			if i > 0 {
				b = append(b, ' ')
			}
			if a.Key != "" {
				ga.Key = a.Key + "." + ga.Key
			}
			b = appendAttr(b, ga)
		}
		return b
	}

	b = append(b, a.Key...)
	b = append(b, '=')
	switch v.Kind() {
	case slog.KindString:
		b = appendString(b, v.String())
	case slog.KindDuration:
		b = append(b, v.Duration().Round(time.Microsecond).String()...)
	case slog.KindTime:
		b = v.Time().AppendFormat(b, time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return appendString(b, err.Error())
		}
		b = appendString(b, fmt.Sprint(v.Any()))
	default:
		b = append(b, v.String()...)
	}
	return b
}

func appendString(b []byte, s string) []byte {
	if plain(s) {
		return append(b, s...)
	}
	return strconv.AppendQuote(b, s)
}

// plain reports whether s can be written without quotes.
func plain(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == '"' || r == '=' || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
