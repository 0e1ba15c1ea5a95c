package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/kopfenjager/Vision-crm-agent/constants"
)

var reFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// ExtractJSONObject strips markdown code fences and surrounding prose and
// returns the first complete JSON object in raw. Decoding stops at the end of
// that object, so braces in trailing prose do not matter. ok is false when no
// object parses.
func ExtractJSONObject(raw string) (obj []byte, stripped bool, ok bool) {
	s := strings.TrimSpace(raw)
	if m := reFence.FindStringSubmatch(s); m != nil {
		s = m[1]
		stripped = true
	}
	for start := strings.IndexByte(s, '{'); start >= 0; {
		dec := json.NewDecoder(strings.NewReader(s[start:]))
		var candidate json.RawMessage
		if err := dec.Decode(&candidate); err == nil {
			end := start + int(dec.InputOffset())
			if start > 0 || strings.TrimSpace(s[end:]) != "" {
				stripped = true
			}
			return []byte(candidate), stripped, true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil, stripped, false
}

// NormalizeRecord turns a decoded model object into a Record:
//   - keys are matched to the canonical names (synonyms renamed)
//   - unknown and duplicate keys are dropped
//   - numbers and booleans become strings, other non-string values become null
//   - strings are trimmed and empty strings become null
//   - missing keys become null
//
// Every repair except trimming is reported in the returned warnings.
func NormalizeRecord(obj []byte, logger *slog.Logger) (Record, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(obj))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return Record{}, nil, fmt.Errorf("sanitize: decode: %w", err)
	}
	if m == nil {
		return Record{}, nil, fmt.Errorf("sanitize: not an object")
	}

	// exact keys first so a synonym never overwrites them, then lexical order
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ei, ej := constants.Field(keys[i]).Index() >= 0, constants.Field(keys[j]).Index() >= 0
		if ei != ej {
			return ei
		}
		return keys[i] < keys[j]
	})

	var (
		rec      Record
		seen     [constants.NumFields]bool
		warnings = make([]string, 0, 4)
	)
	for _, k := range keys {
		f, ok := constants.Canonicalize(k)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("dropped unknown key %q", k))
			continue
		}
		if seen[f.Index()] {
			warnings = append(warnings, fmt.Sprintf("dropped duplicate key %q for %q", k, f))
			continue
		}
		seen[f.Index()] = true
		if k != string(f) {
			warnings = append(warnings, fmt.Sprintf("renamed key %q to %q", k, f))
		}

		v, warn := coerceValue(m[k])
		if warn != "" {
			warnings = append(warnings, fmt.Sprintf("%s: %s", f, warn))
		}
		rec.Set(f, v)
	}
	for i, f := range constants.AllFields() {
		if !seen[i] {
			warnings = append(warnings, fmt.Sprintf("missing key %q set to null", f))
		}
	}

	if len(warnings) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "warnings", warnings)
	}
	return rec, warnings, nil
}

func coerceValue(v any) (*string, string) {
	switch t := v.(type) {
	case nil:
		return nil, ""
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, ""
		}
		return &s, ""
	case json.Number:
		s := t.String()
		return &s, "number coerced to string"
	case float64:
		s := fmt.Sprintf("%v", t)
		return &s, "number coerced to string"
	case bool:
		s := fmt.Sprintf("%t", t)
		return &s, "boolean coerced to string"
	default:
		return nil, fmt.Sprintf("%T value set to null", t)
	}
}
