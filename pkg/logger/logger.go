package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var once sync.Once

var logger *zap.SugaredLogger

// Options control how the process logger is built
type Options struct {
	// Debug lowers the level to debug regardless of LOG_LEVEL
	Debug bool
	// Dir, when set, receives a copy of every entry in a file named after the current date
	Dir string
}

// Get initializes a zap.SugaredLogger instance if it has not been initialized
// already and returns the same instance for subsequent calls.
func Get() *zap.SugaredLogger {
	once.Do(func() {
		if logger != nil {
			return
		}

		l, err := New(Options{})
		if err != nil {
			log.Println(fmt.Errorf("failed to build logger: %w", err))
			l = zap.NewNop().Sugar()
		}
		logger = l
	})

	return logger
}

// Configure replaces the process logger with one built from opts. It should be
// called once during start up before any goroutines log.
func Configure(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}

	once.Do(func() {})
	logger = l
	return nil
}

// New builds a logger that writes to stdout and, if opts.Dir is set, to a dated log file.
// LOG_LEVEL sets the level and JSON_LOG switches both outputs to json.
func New(opts Options) (*zap.SugaredLogger, error) {
	level := zap.InfoLevel
	levelEnv := os.Getenv("LOG_LEVEL")
	if levelEnv != "" {
		levelFromEnv, err := zapcore.ParseLevel(levelEnv)
		if err != nil {
			log.Println(
				fmt.Errorf("invalid level, defaulting to INFO: %w", err),
			)
		} else {
			level = levelFromEnv
		}
	}
	if opts.Debug {
		level = zap.DebugLevel
	}

	logLevel := zap.NewAtomicLevelAt(level)

	productionCfg := zap.NewProductionEncoderConfig()
	productionCfg.TimeKey = "timestamp"
	productionCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	developmentCfg := zap.NewDevelopmentEncoderConfig()
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		developmentCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	fileCfg := zap.NewDevelopmentEncoderConfig()
	fileCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)

	consoleEncoder := zapcore.NewConsoleEncoder(developmentCfg)
	fileEncoder := zapcore.NewConsoleEncoder(fileCfg)
	isJSON := os.Getenv("JSON_LOG")
	if isJSON != "" {
		consoleEncoder = zapcore.NewJSONEncoder(productionCfg)
		fileEncoder = zapcore.NewJSONEncoder(productionCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), logLevel),
	}

	if opts.Dir != "" {
		f, err := openDailyFile(opts.Dir, time.Now())
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(f), logLevel))
	}

	core := zapcore.NewTee(cores...)

	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		var fields []zapcore.Field
		fields = append(fields, zap.String("go_version", buildInfo.GoVersion))
		for _, v := range buildInfo.Settings {
			if v.Key == "vcs.revision" && len(v.Value) >= 7 {
				fields = append(fields, zap.String("git_revision", v.Value[0:7]))
				break
			}
		}

		core = core.With(fields)
	}

	return zap.New(core).Sugar(), nil
}

// openDailyFile opens dir/YYYY-MM-DD.log for appending, creating dir if needed
func openDailyFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, now.Format(time.DateOnly)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return f, nil
}

// FromCtx returns the Logger associated with the ctx. If no logger
// is associated, the default logger is returned with the given fields.
func FromCtx(ctx context.Context, with ...any) *zap.SugaredLogger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok {
		if len(with) == 0 {
			return l
		}
		return l.With(with...)
	}

	if len(with) == 0 {
		return Get()
	}
	return Get().With(with...)
}

// WithCtx returns a copy of ctx with the Logger attached.
func WithCtx(ctx context.Context, l *zap.SugaredLogger) context.Context {
	if lp, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok {
		if lp == l {
			// Do not store same logger.
			return ctx
		}
	}

	return context.WithValue(ctx, ctxKey{}, l)
}
