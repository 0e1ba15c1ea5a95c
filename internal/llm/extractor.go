package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/kopfenjager/Vision-crm-agent/internal/common"
)

const DefaultTemperature float32 = 0.2

type Config struct {
	Temperature float32       // default 0.2
	Timeout     time.Duration // per attempt, default 30s
	MaxRetries  int           // retries after the first attempt
	Policy      MalformedPolicy

	InitialInterval time.Duration // first backoff wait, default 500ms
	MaxInterval     time.Duration // default 5s
}

// FieldExtractor turns RawText into an ExtractedRecord through a Completer.
type FieldExtractor struct {
	llm    Completer
	cfg    Config
	logger *slog.Logger
}

func NewFieldExtractor(c Completer, cfg Config, logger *slog.Logger) *FieldExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyNullFill
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	return &FieldExtractor{llm: c, cfg: cfg, logger: logger}
}

// Provider names the backing completer.
func (e *FieldExtractor) Provider() string { return e.llm.Name() }

// Extract asks the model for the record. Empty rawText is valid input.
// Provider failures surface as ModelUnavailable; schema violations follow the policy.
func (e *FieldExtractor) Extract(ctx context.Context, rawText string) (Result, error) {
	rid := uuid.New().String()
	start := time.Now()
	e.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", e.llm.Name(),
		"temp", e.cfg.Temperature,
		"text_len", len(rawText),
		"policy", e.cfg.Policy,
	)

	prompt := BuildPrompt(rawText)
	raw, attempts, err := e.complete(ctx, rid, prompt)
	if err != nil {
		e.logger.Error("llm.extract.unavailable",
			"req_id", rid, "attempts", attempts, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Result{Attempts: attempts}, common.ModelUnavailableError(e.llm.Name(), err)
	}

	res, err := e.interpret(rid, raw)
	res.Attempts = attempts
	if err != nil {
		e.logger.Error("llm.extract.malformed",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return res, err
	}

	e.logger.Info("llm.extract.ok",
		"req_id", rid,
		"present", res.Record.Present(),
		"partial", res.Partial,
		"attempts", attempts,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// complete calls the provider with a per-attempt timeout and bounded exponential backoff.
func (e *FieldExtractor) complete(ctx context.Context, rid, prompt string) (string, int, error) {
	attempts := 0
	op := func() (string, error) {
		attempts++
		actx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
		out, err := e.llm.Complete(actx, prompt, e.cfg.Temperature)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		var r interface{ Retryable() bool }
		if errors.As(err, &r) && !r.Retryable() {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.cfg.InitialInterval
	eb.MaxInterval = e.cfg.MaxInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(e.cfg.MaxRetries)), ctx)

	out, err := backoff.RetryNotifyWithData(op, b, func(err error, wait time.Duration) {
		e.logger.Warn("llm.extract.retry",
			"req_id", rid, "attempt", attempts, "wait_ms", wait.Milliseconds(), "error", err)
	})
	return out, attempts, err
}

func (e *FieldExtractor) interpret(rid, raw string) (Result, error) {
	res := Result{Raw: raw}

	obj, stripped, ok := ExtractJSONObject(raw)
	if !ok {
		if e.cfg.Policy == PolicyReject {
			return res, common.MalformedResponseError("model response is not a JSON object", nil)
		}
		res.Partial = true
		res.Warnings = []string{"response is not a JSON object; all fields set to null"}
		e.logger.Warn("llm.extract.null_fill", "req_id", rid, "reason", "not_json")
		return res, nil
	}
	if stripped {
		e.logger.Debug("llm.extract.stripped_wrapper", "req_id", rid)
	}

	schemaErr := ValidateRecordJSON(obj)
	if schemaErr != nil && e.cfg.Policy == PolicyReject {
		return res, common.MalformedResponseError("model response violates record schema", schemaErr)
	}

	rec, warnings, err := NormalizeRecord(obj, e.logger)
	if err != nil {
		if e.cfg.Policy == PolicyReject {
			return res, common.MalformedResponseError("model response is not a JSON object", err)
		}
		res.Partial = true
		res.Warnings = []string{err.Error()}
		return res, nil
	}
	res.Record = rec
	if schemaErr != nil {
		res.Partial = true
		res.Warnings = warnings
		if len(res.Warnings) == 0 {
			res.Warnings = []string{schemaErr.Error()}
		}
	}
	return res, nil
}
