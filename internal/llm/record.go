package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kopfenjager/Vision-crm-agent/constants"
)

// Record is the ExtractedRecord: exactly the ten canonical fields, each a
// string or null. It marshals to a JSON object with every key in canonical order.
type Record struct {
	values [constants.NumFields]*string
}

// Get returns the value of f and whether it is non-null.
func (r Record) Get(f constants.Field) (string, bool) {
	i := f.Index()
	if i < 0 || r.values[i] == nil {
		return "", false
	}
	return *r.values[i], true
}

// Set assigns f; nil clears it. Unknown fields are ignored.
func (r *Record) Set(f constants.Field, v *string) {
	i := f.Index()
	if i < 0 {
		return
	}
	if v == nil {
		r.values[i] = nil
		return
	}
	s := *v
	r.values[i] = &s
}

func (r *Record) SetString(f constants.Field, v string) { r.Set(f, &v) }

// Present counts non-null fields.
func (r Record) Present() int {
	n := 0
	for _, v := range r.values {
		if v != nil {
			n++
		}
	}
	return n
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range constants.AllFields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(f))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if r.values[i] == nil {
			buf.WriteString("null")
			continue
		}
		v, err := json.Marshal(*r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads canonical keys only; other keys are ignored and missing keys stay null.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]*string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	*r = Record{}
	for k, v := range m {
		r.Set(constants.Field(k), v)
	}
	return nil
}
