package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kopfenjager/Vision-crm-agent/constants"
	"github.com/kopfenjager/Vision-crm-agent/internal/common"
)

const licenseText = "JOHN Q PUBLIC\n123 MAIN ST\nANYTOWN CA 90210\nDL A1234567\nDOB 01/01/1990\nEXP 01/01/2030"

const licenseJSON = `{
  "First Name": "JOHN",
  "Middle Initial": "Q",
  "Last Name": "PUBLIC",
  "Street Address": "123 MAIN ST",
  "City": "ANYTOWN",
  "State": "CA",
  "Zip Code": "90210",
  "Driver's License Number": "A1234567",
  "Date of Birth": "01/01/1990",
  "Expiration Date": "01/01/2030"
}`

// stubCompleter replays responses in order; the last one repeats.
type stubCompleter struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	delay     time.Duration

	calls   int
	prompts []string
	temps   []float32
}

func (s *stubCompleter) Name() string { return "stub" }

func (s *stubCompleter) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.temps = append(s.temps, temperature)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if len(s.responses) == 0 {
		return "", nil
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func fastConfig(policy MalformedPolicy) Config {
	return Config{
		Timeout:         time.Second,
		MaxRetries:      2,
		Policy:          policy,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func value(t *testing.T, r Record, f constants.Field) string {
	t.Helper()
	v, ok := r.Get(f)
	require.True(t, ok, "field %s is null", f)
	return v
}

func TestExtractFixedTextExactFields(t *testing.T) {
	stub := &stubCompleter{responses: []string{licenseJSON}}
	fx := NewFieldExtractor(stub, fastConfig(PolicyNullFill), nil)

	res, err := fx.Extract(context.Background(), licenseText)
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.Attempts)

	assert.Equal(t, "JOHN", value(t, res.Record, constants.FirstName))
	assert.Equal(t, "Q", value(t, res.Record, constants.MiddleInitial))
	assert.Equal(t, "PUBLIC", value(t, res.Record, constants.LastName))
	assert.Equal(t, "123 MAIN ST", value(t, res.Record, constants.StreetAddress))
	assert.Equal(t, "ANYTOWN", value(t, res.Record, constants.City))
	assert.Equal(t, "CA", value(t, res.Record, constants.State))
	assert.Equal(t, "90210", value(t, res.Record, constants.ZipCode))
	assert.Equal(t, "A1234567", value(t, res.Record, constants.LicenseNumber))
	assert.Equal(t, "01/01/1990", value(t, res.Record, constants.DateOfBirth))
	assert.Equal(t, "01/01/2030", value(t, res.Record, constants.ExpirationDate))

	require.Len(t, stub.temps, 1)
	assert.InDelta(t, 0.2, stub.temps[0], 1e-6)
}

func TestPromptCarriesAllKeysAndText(t *testing.T) {
	p := BuildPrompt(licenseText)
	for _, f := range constants.AllFields() {
		assert.Contains(t, p, string(f))
	}
	assert.Contains(t, p, licenseText)
	assert.Contains(t, p, "ONLY a JSON object")
	assert.Contains(t, p, "null")
}

func TestMissingKeysAreNullFilled(t *testing.T) {
	stub := &stubCompleter{responses: []string{`{"First Name":"JOHN","City":"ANYTOWN"}`}}
	res, err := NewFieldExtractor(stub, fastConfig(PolicyNullFill), nil).Extract(context.Background(), licenseText)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, 2, res.Record.Present())
	assert.Len(t, res.Warnings, 8)

	out, err := json.Marshal(res.Record)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Len(t, m, constants.NumFields)
	assert.Nil(t, m["Last Name"])
	assert.Equal(t, "JOHN", m["First Name"])
}

func TestExtraKeysAreDropped(t *testing.T) {
	body := strings.TrimSuffix(strings.TrimSpace(licenseJSON), "}") + `, "Height": "5-10", "Eyes": "BRN"}`
	stub := &stubCompleter{responses: []string{body}}
	res, err := NewFieldExtractor(stub, fastConfig(PolicyNullFill), nil).Extract(context.Background(), licenseText)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, constants.NumFields, res.Record.Present())
	assert.Len(t, res.Warnings, 2)

	out, err := json.Marshal(res.Record)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "Height")
}

func TestSynonymsAndCoercion(t *testing.T) {
	stub := &stubCompleter{responses: []string{`{"first_name":"JOHN","zip":90210,"DOB":"01/01/1990","Last Name":"","State":["CA"]}`}}
	res, err := NewFieldExtractor(stub, fastConfig(PolicyNullFill), nil).Extract(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, "JOHN", value(t, res.Record, constants.FirstName))
	assert.Equal(t, "90210", value(t, res.Record, constants.ZipCode))
	assert.Equal(t, "01/01/1990", value(t, res.Record, constants.DateOfBirth))
	_, ok := res.Record.Get(constants.LastName)
	assert.False(t, ok)
	_, ok = res.Record.Get(constants.State)
	assert.False(t, ok)
}

func TestNonJSONNullFill(t *testing.T) {
	stub := &stubCompleter{responses: []string{"I could not read this license, sorry."}}
	res, err := NewFieldExtractor(stub, fastConfig(PolicyNullFill), nil).Extract(context.Background(), licenseText)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, 0, res.Record.Present())
	assert.NotEmpty(t, res.Warnings)
}

func TestNonJSONReject(t *testing.T) {
	stub := &stubCompleter{responses: []string{"not json"}}
	_, err := NewFieldExtractor(stub, fastConfig(PolicyReject), nil).Extract(context.Background(), licenseText)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMalformedResponse)
	assert.Equal(t, "fields", string(common.StageOf(err)))
}

func TestSchemaViolationReject(t *testing.T) {
	stub := &stubCompleter{responses: []string{`{"First Name":"JOHN"}`}}
	_, err := NewFieldExtractor(stub, fastConfig(PolicyReject), nil).Extract(context.Background(), licenseText)
	assert.ErrorIs(t, err, common.ErrMalformedResponse)
}

func TestRejectAcceptsValidRecord(t *testing.T) {
	stub := &stubCompleter{responses: []string{licenseJSON}}
	res, err := NewFieldExtractor(stub, fastConfig(PolicyReject), nil).Extract(context.Background(), licenseText)
	require.NoError(t, err)
	assert.Equal(t, constants.NumFields, res.Record.Present())
}

func TestCodeFencesAreStripped(t *testing.T) {
	stub := &stubCompleter{responses: []string{"Here you go:\n```json\n" + licenseJSON + "\n```\n"}}
	res, err := NewFieldExtractor(stub, fastConfig(PolicyReject), nil).Extract(context.Background(), licenseText)
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, "A1234567", value(t, res.Record, constants.LicenseNumber))
}

func TestEmptyTextAllNull(t *testing.T) {
	allNull := `{"First Name":null,"Middle Initial":null,"Last Name":null,"Street Address":null,"City":null,"State":null,"Zip Code":null,"Driver's License Number":null,"Date of Birth":null,"Expiration Date":null}`
	stub := &stubCompleter{responses: []string{allNull}}
	res, err := NewFieldExtractor(stub, fastConfig(PolicyNullFill), nil).Extract(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, 0, res.Record.Present())

	out, err := json.Marshal(res.Record)
	require.NoError(t, err)
	assert.JSONEq(t, allNull, string(out))
}

func TestTimeoutIsModelUnavailable(t *testing.T) {
	stub := &stubCompleter{responses: []string{licenseJSON}, delay: time.Second}
	cfg := fastConfig(PolicyNullFill)
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 1

	start := time.Now()
	res, err := NewFieldExtractor(stub, cfg, nil).Extract(context.Background(), licenseText)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, res.Attempts)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestFlakyProviderRecovers(t *testing.T) {
	stub := &stubCompleter{
		responses: []string{"", "", licenseJSON},
		errs:      []error{errors.New("connection reset"), &StatusError{Provider: "stub", Status: 503}},
	}
	res, err := NewFieldExtractor(stub, fastConfig(PolicyNullFill), nil).Extract(context.Background(), licenseText)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "JOHN", value(t, res.Record, constants.FirstName))
}

func TestRetriesAreBounded(t *testing.T) {
	boom := errors.New("provider down")
	stub := &stubCompleter{errs: []error{boom, boom, boom, boom, boom}}
	res, err := NewFieldExtractor(stub, fastConfig(PolicyNullFill), nil).Extract(context.Background(), licenseText)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, stub.calls)
}

func TestNonRetryableStatusStopsImmediately(t *testing.T) {
	stub := &stubCompleter{errs: []error{&StatusError{Provider: "stub", Status: 401, Body: "bad key"}}}
	res, err := NewFieldExtractor(stub, fastConfig(PolicyNullFill), nil).Extract(context.Background(), licenseText)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrModelUnavailable)
	assert.Equal(t, 1, res.Attempts)
}

func TestRecordJSONOrderAndRoundTrip(t *testing.T) {
	var r Record
	r.SetString(constants.LicenseNumber, "A1234567")
	r.SetString(constants.FirstName, "JOHN")

	out, err := json.Marshal(r)
	require.NoError(t, err)
	s := string(out)
	assert.True(t, strings.HasPrefix(s, `{"First Name":"JOHN","Middle Initial":null`))
	assert.Less(t, strings.Index(s, "Zip Code"), strings.Index(s, "Driver's License Number"))
	assert.Less(t, strings.Index(s, "Date of Birth"), strings.Index(s, "Expiration Date"))

	var back Record
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, r, back)
}

func TestExtractJSONObject(t *testing.T) {
	obj, stripped, ok := ExtractJSONObject(`{"a":1}`)
	require.True(t, ok)
	assert.False(t, stripped)
	assert.JSONEq(t, `{"a":1}`, string(obj))

	obj, stripped, ok = ExtractJSONObject("```\n{\"a\":{\"b\":2}}\n```")
	require.True(t, ok)
	assert.True(t, stripped)
	assert.JSONEq(t, `{"a":{"b":2}}`, string(obj))

	_, _, ok = ExtractJSONObject("no braces here")
	assert.False(t, ok)
	_, _, ok = ExtractJSONObject("{broken")
	assert.False(t, ok)
}

func TestExtractJSONObjectStopsAtObjectEnd(t *testing.T) {
	raw := licenseJSON + "\nNote: fields I could not read are {null}."
	obj, stripped, ok := ExtractJSONObject(raw)
	require.True(t, ok)
	assert.True(t, stripped)
	assert.JSONEq(t, licenseJSON, string(obj))

	obj, stripped, ok = ExtractJSONObject("Here you go: {not json} then {\"a\":\"}\"} done {")
	require.True(t, ok)
	assert.True(t, stripped)
	assert.JSONEq(t, `{"a":"}"}`, string(obj))
}

func TestTrailingProseWithBracesKeepsFields(t *testing.T) {
	stub := &stubCompleter{responses: []string{licenseJSON + "\nNote: fields I could not read are {null}."}}
	fx := NewFieldExtractor(stub, fastConfig(PolicyNullFill), nil)
	assert.Equal(t, "stub", fx.Provider())

	res, err := fx.Extract(context.Background(), licenseText)
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, constants.NumFields, res.Record.Present())
	assert.Equal(t, "JOHN", value(t, res.Record, constants.FirstName))
	assert.Equal(t, "01/01/2030", value(t, res.Record, constants.ExpirationDate))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyNullFill, p)
	p, err = ParsePolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)
	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}

func TestSchemaRejectsExtraKeys(t *testing.T) {
	require.NoError(t, ValidateRecordJSON([]byte(licenseJSON)))
	body := strings.TrimSuffix(strings.TrimSpace(licenseJSON), "}") + `, "Eyes": "BRN"}`
	assert.Error(t, ValidateRecordJSON([]byte(body)))
	assert.Error(t, ValidateRecordJSON([]byte(`{"First Name":"JOHN"}`)))
}
