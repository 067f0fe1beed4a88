package guardrail

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var (
	ErrBadStatus   = errors.New("guardrail status must be PASS, WARN or BLOCK")
	ErrBadSeverity = errors.New("guardrail severity must be INFO, WARN or BLOCK")
	ErrBadDuration = errors.New("guardrail duration must be non-negative")
	ErrUnsafeData  = errors.New("guardrail data must hold plain scalars, maps or slices")
)

// Result is the immutable outcome of one guardrail evaluation. Data is
// restricted to plain values so results stay serializable for audit logs
// and cross-process transport.
type Result struct {
	Code     string         `json:"code"`
	Status   string         `json:"status"`
	Severity string         `json:"severity"`
	Reason   string         `json:"reason"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
}

// NewResult validates and builds a Result. Severity defaults from status
// when empty; Reason defaults to a machine token derived from the message.
func NewResult(code, status, severity, reason, message string, data map[string]any, duration time.Duration) (Result, error) {
	if !ValidStatus(status) {
		return Result{}, fmt.Errorf("%w: %q", ErrBadStatus, status)
	}
	if severity == "" {
		severity = SeverityFromStatus(status)
	}
	if !ValidSeverity(severity) {
		return Result{}, fmt.Errorf("%w: %q", ErrBadSeverity, severity)
	}
	if duration < 0 {
		return Result{}, ErrBadDuration
	}
	if err := checkData(data, 0); err != nil {
		return Result{}, err
	}
	if reason == "" {
		reason = ReasonToken(message)
	}
	return Result{
		Code:     code,
		Status:   status,
		Severity: severity,
		Reason:   reason,
		Message:  message,
		Data:     data,
		Duration: duration,
	}, nil
}

// LegacyRecord is the loosely-typed shape older callers still produce.
type LegacyRecord struct {
	Code    string         `json:"code"`
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// FromLegacy upgrades a legacy record, deriving severity from status and
// the reason token from the message.
func FromLegacy(rec LegacyRecord) (Result, error) {
	return NewResult(rec.Code, rec.Status, "", "", rec.Message, rec.Meta, 0)
}

// ReasonToken lower-cases and underscore-joins message text into a stable
// machine token.
func ReasonToken(message string) string {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "_")
}

func (r Result) Blocked() bool {
	return r.Status == StatusBlock
}

const maxDataDepth = 16

func checkData(v any, depth int) error {
	if depth > maxDataDepth {
		return fmt.Errorf("%w: nesting too deep", ErrUnsafeData)
	}
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Map:
		for _, key := range rv.MapKeys() {
			if key.Kind() != reflect.String {
				return fmt.Errorf("%w: non-string map key", ErrUnsafeData)
			}
			if err := checkData(rv.MapIndex(key).Interface(), depth+1); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := checkData(rv.Index(i).Interface(), depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s not allowed", ErrUnsafeData, rv.Kind())
	}
}
