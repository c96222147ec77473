package recovery

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultMaxRawBytes bounds the model text kept per diagnostic entry.
const DefaultMaxRawBytes = 2048

// Controller records fatal failures and downgrades non-fatal ones.
type Controller struct {
	diag   *zap.Logger
	maxRaw int
	closer func() error
}

// NewController opens (or creates) the diagnostic log at path in append
// mode. An empty path discards diagnostics.
func NewController(path string, maxRaw int) (*Controller, error) {
	if path == "" {
		return NewControllerWithWriter(zapcore.AddSync(discard{}), maxRaw), nil
	}
	ws, closeFn, err := zap.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "recovery: open diagnostic log %s", path)
	}
	c := NewControllerWithWriter(ws, maxRaw)
	c.closer = func() error {
		_ = ws.Sync()
		closeFn()
		return nil
	}
	return c, nil
}

// NewControllerWithWriter writes diagnostics as JSON lines to ws.
func NewControllerWithWriter(ws zapcore.WriteSyncer, maxRaw int) *Controller {
	if maxRaw <= 0 {
		maxRaw = DefaultMaxRawBytes
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encCfg.MessageKey = "event"
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = zapcore.OmitKey

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(ws), zapcore.DebugLevel)
	return &Controller{diag: zap.New(core), maxRaw: maxRaw, closer: func() error { return nil }}
}

// Fatal appends a diagnostic entry for f and returns the caller-facing error.
func (c *Controller) Fatal(runID string, f *Failure, completed []string) *ExecutionError {
	if completed == nil {
		completed = []string{}
	}
	c.diag.Error("run failed",
		zap.String("run_id", runID),
		zap.String("stage", f.Stage),
		zap.String("classification", string(f.Kind)),
		zap.String("error", errString(f.Err)),
		zap.String("raw", Truncate(f.Raw, c.maxRaw)),
		zap.Strings("completed_stages", completed),
	)
	_ = c.diag.Sync()

	zap.L().Error("recovery: run failed",
		zap.String("run_id", runID),
		zap.String("stage", f.Stage),
		zap.String("classification", string(f.Kind)),
	)
	return &ExecutionError{RunID: runID, Kind: f.Kind}
}

// Degrade logs a non-fatal failure and lets the run continue.
func (c *Controller) Degrade(runID string, f *Failure) {
	zap.L().Warn("recovery: degraded",
		zap.String("run_id", runID),
		zap.String("stage", f.Stage),
		zap.String("classification", string(f.Kind)),
		zap.Error(f.Err),
	)
}

// Handle classifies err from stage and dispatches to Fatal or Degrade. It
// returns nil for non-fatal failures.
func (c *Controller) Handle(runID, stage string, err error, completed []string) error {
	f := Classify(stage, err)
	if f == nil {
		return nil
	}
	if !f.Kind.Fatal() {
		c.Degrade(runID, f)
		return nil
	}
	return c.Fatal(runID, f, completed)
}

// Close flushes and closes the diagnostic log.
func (c *Controller) Close() error {
	return c.closer()
}

// Guard runs fn, turning a panic into a stage execution failure.
func Guard[T any](ctx context.Context, stage string, fn func(ctx context.Context) (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Failure{Kind: KindStageExecution, Stage: stage, Err: eris.Errorf("panic: %v", r)}
		}
	}()
	return fn(ctx)
}

// Truncate shortens s to at most n bytes on a rune boundary, noting how
// much was dropped.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("...[truncated %d bytes]", len(s)-cut)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
