// Package logging provides category-scoped structured logging for cogito.
// Each subsystem logs through its own category so a single run can be traced
// phase by phase. Until Initialize is called every logger is a no-op, which
// keeps tests silent without any setup.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem a log line belongs to.
type Category string

const (
	CategoryKernel    Category = "kernel"    // Orchestrator loop, phase transitions
	CategoryOracle    Category = "oracle"    // Oracle round-trips and retries
	CategoryContract  Category = "contract"  // Rendering, extraction, schema validation
	CategoryPlanner   Category = "planner"   // Plan generation, subplans, refinement
	CategoryValidate  Category = "validate"  // Structural and semantic validation
	CategoryConverge  Category = "converge"  // Convergence assessment
	CategorySynthesis Category = "synthesis" // Phase E answer synthesis
	CategoryAdaptive  Category = "adaptive"  // Task profiling and TTL allocation
	CategoryConfig    Category = "config"    // Config load and hot-reload
)

// Options controls logger construction.
type Options struct {
	// Debug enables debug-level output. When false only info and above
	// are emitted.
	Debug bool

	// JSONFormat switches the encoder to structured JSON; the default is
	// a console encoder for interactive use.
	JSONFormat bool
}

var (
	mu      sync.RWMutex
	root    *zap.SugaredLogger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the root logger. Safe to call more than once; the last
// call wins. Category loggers handed out earlier keep their old sinks, so
// call this before any Get.
func Initialize(opts Options) error {
	cfg := zap.NewProductionConfig()
	if opts.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if !opts.JSONFormat {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	root = logger.Sugar()
	loggers = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
	return nil
}

// Get returns the logger for a category. Before Initialize it returns a
// no-op logger.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	r := root
	mu.RUnlock()

	if r == nil {
		return zap.NewNop().Sugar()
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := r.With("category", string(cat))
	loggers[cat] = l
	return l
}

// WithRun returns a category logger scoped to one task execution.
func WithRun(cat Category, correlationID string) *zap.SugaredLogger {
	return Get(cat).With("run", correlationID)
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}
