package common

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"
)

// ValidationError is one failed rule for one setting.
type ValidationError struct {
	Var    string // environment variable name
	Value  any
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s=%q %s", e.Var, display(e.Var, e.Value), e.Reason)
}

// display hides credentials in messages.
func display(name string, v any) string {
	s := fmt.Sprint(v)
	if s == "" || s == "<nil>" {
		return ""
	}
	if strings.HasSuffix(name, "_KEY") || name == "DB_URL" {
		return "<redacted>"
	}
	return s
}

// Rule checks one value and returns the failure reason, or "" when valid.
type Rule func(value any) string

// Validator accumulates failures across settings.
type Validator struct {
	failures []ValidationError
}

func NewValidator() *Validator { return &Validator{} }

// Check applies rules to value in order and stops at the first failure.
func (v *Validator) Check(name string, value any, rules ...Rule) *Validator {
	for _, rule := range rules {
		if reason := rule(value); reason != "" {
			v.failures = append(v.failures, ValidationError{Var: name, Value: value, Reason: reason})
			break
		}
	}
	return v
}

// CheckIf applies rules only when cond holds.
func (v *Validator) CheckIf(cond bool, name string, value any, rules ...Rule) *Validator {
	if cond {
		v.Check(name, value, rules...)
	}
	return v
}

func (v *Validator) HasErrors() bool { return len(v.failures) > 0 }

func (v *Validator) Errors() []ValidationError { return slices.Clone(v.failures) }

// ErrorMessage joins all failures with "; ".
func (v *Validator) ErrorMessage() string {
	msgs := make([]string, len(v.failures))
	for i, f := range v.failures {
		msgs[i] = f.Error()
	}
	return strings.Join(msgs, "; ")
}

func Required(value any) string {
	switch s := value.(type) {
	case nil:
		return "is required"
	case string:
		if strings.TrimSpace(s) == "" {
			return "is required"
		}
	}
	return ""
}

// Positive accepts ints, int32s and durations above zero.
func Positive(value any) string {
	var ok bool
	switch n := value.(type) {
	case int:
		ok = n > 0
	case int32:
		ok = n > 0
	case time.Duration:
		ok = n > 0
	default:
		return "must be a number"
	}
	if !ok {
		return "must be positive"
	}
	return ""
}

// OneOf accepts only the listed values.
func OneOf(allowed ...string) Rule {
	return func(value any) string {
		if s, _ := value.(string); slices.Contains(allowed, s) {
			return ""
		}
		return "must be one of " + strings.Join(allowed, " | ")
	}
}

// ListenAddr accepts host:port or :port.
func ListenAddr(value any) string {
	s, _ := value.(string)
	if _, _, err := net.SplitHostPort(s); err != nil {
		return "must be host:port"
	}
	return ""
}
