package events

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// BoltEmitter writes events through a bolt structured logger.
type BoltEmitter struct {
	logger *bolt.Logger
}

// NewBoltEmitter builds an emitter writing JSON to w (stdout when nil).
// Level accepts debug/info/warn/error; anything else means info.
func NewBoltEmitter(w io.Writer, level string) *BoltEmitter {
	if w == nil {
		w = os.Stdout
	}
	logger := bolt.New(bolt.NewJSONHandler(w)).SetLevel(parseLevel(level))
	return &BoltEmitter{logger: logger}
}

func parseLevel(level string) bolt.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return bolt.DEBUG
	case "warn":
		return bolt.WARN
	case "error":
		return bolt.ERROR
	default:
		return bolt.INFO
	}
}

func (b *BoltEmitter) Emit(ctx context.Context, event string, fields map[string]any) {
	_ = ctx
	b.apply(b.logger.Info(), fields).Msg(event)
}

func (b *BoltEmitter) Debug(ctx context.Context, event string, fields map[string]any) {
	_ = ctx
	b.apply(b.logger.Debug(), fields).Msg(event)
}

func (b *BoltEmitter) apply(e *bolt.Event, fields map[string]any) *bolt.Event {
	for _, k := range sortedKeys(fields) {
		switch v := fields[k].(type) {
		case string:
			e = e.Str(k, v)
		case bool:
			e = e.Bool(k, v)
		case int:
			e = e.Int(k, v)
		case int64:
			e = e.Int64(k, v)
		case float64:
			e = e.Float64(k, v)
		case time.Duration:
			e = e.Int64(k+"_ms", v.Milliseconds())
		case error:
			e = e.Str(k, v.Error())
		default:
			e = e.Str(k, fmt.Sprintf("%v", v))
		}
	}
	return e
}
