package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level  slog.Leveler
	writer *asyncWriter
	// errWriter additionally receives WARN and above when set.
	errWriter *asyncWriter
	format    logFormat
	keyOrder  []string
	redact    map[string]struct{}
}

// structuredHandler renders flat key/value records with a stable key order.
// Groups are flattened into dotted keys.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	isJSON := h.cfg.format == formatJSON

	fields := make(map[string]any, 16)
	ts := r.Time.UTC()
	fields["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	fields["level"] = normalizeLevel(r.Level.String())
	if isJSON {
		fields["ts_unix_nano"] = ts.UnixNano()
	}

	// h.attrs were prefixed when they were added.
	for _, a := range h.attrs {
		h.flatten(fields, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.flatten(fields, h.prefix, a)
		return true
	})
	for _, a := range contextAttrs(ctx) {
		if _, ok := fields[a.Key]; !ok {
			fields[a.Key] = a.Value.Any()
		}
	}

	finalize(fields, r.Message, isJSON)

	var (
		line []byte
		err  error
	)
	if isJSON {
		line, err = encodeJSON(fields, h.cfg.keyOrder)
	} else {
		line = encodeKV(fields, h.cfg.keyOrder)
	}
	if err != nil {
		return err
	}
	line = append(line, '\n')

	err = h.cfg.writer.Write(line)
	if h.cfg.errWriter != nil && r.Level >= slog.LevelWarn {
		err = errors.Join(err, h.cfg.errWriter.Write(line))
	}
	return err
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" && a.Key != "" {
			a.Key = h.prefix + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.prefix == "" {
		clone.prefix = name
	} else {
		clone.prefix += "." + name
	}
	return &clone
}

func (h *structuredHandler) flatten(fields map[string]any, prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" {
		if key == "" {
			key = prefix
		} else {
			key = prefix + "." + key
		}
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			h.flatten(fields, key, child)
		}
		return
	}
	if key == "" {
		return
	}
	key, val, ok := normalizeValue(key, v)
	if !ok {
		return
	}
	if s, isStr := val.(string); isStr && h.redacted(key) {
		val = Mask(s)
	}
	fields[key] = val
}

func (h *structuredHandler) redacted(key string) bool {
	if len(h.cfg.redact) == 0 {
		return false
	}
	if _, ok := h.cfg.redact[key]; ok {
		return true
	}
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		_, ok := h.cfg.redact[key[i+1:]]
		return ok
	}
	return false
}

// normalizeValue converts v to a JSON-friendly value. Durations become
// integer milliseconds under a key ending in _ms.
func normalizeValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}

	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case string:
		return key, strings.TrimSpace(x), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

// finalize fills event and component defaults, compacts the rid and drops
// empty values.
func finalize(fields map[string]any, msg string, isJSON bool) {
	if rid, ok := fields["rid"].(string); ok && rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if _, seen := fields["rid_full"]; isJSON && !seen {
				fields["rid_full"] = rid
			}
			fields["rid"] = compact
		}
	}
	if s, _ := fields["event"].(string); s == "" {
		if msg == "" {
			msg = "unknown"
		}
		fields["event"] = msg
	}
	if s, _ := fields["component"].(string); s == "" {
		fields["component"] = "app"
	}

	if s, ok := fields["status"].(string); ok && s != "" {
		fields["status"] = normalizeStatus(s)
	}
	if s, ok := fields["outcome"].(string); ok {
		if o, valid := normalizeOutcome(s); valid {
			fields["outcome"] = o
		} else {
			delete(fields, "outcome")
		}
	}

	for k, v := range fields {
		if v == nil || v == "" {
			delete(fields, k)
		}
	}
}
