// Package config loads runtime settings from a CUE (or JSON) file validated
// against the embedded #Config schema.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource string

// Config holds runtime settings.
type Config struct {
	FrameIntervalMs  int    `json:"frame_interval_ms"`
	LogLevel         string `json:"log_level"`
	MetricsNamespace string `json:"metrics_namespace"`
	TraceDB          string `json:"trace_db"`
}

// Error codes.
const (
	ErrCodeRead    = "CONFIG_READ"
	ErrCodeParse   = "CONFIG_PARSE"
	ErrCodeInvalid = "CONFIG_INVALID"
)

// Error reports a configuration problem with its CUE position when known.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := LoadBytes("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema is invalid: %v", err))
	}
	return cfg
}

// Load reads and validates the file at path. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Code: ErrCodeRead, Message: err.Error()}
	}
	return LoadBytes(path, data)
}

// LoadBytes validates src (named filename in errors) against #Config and
// fills in defaults for missing fields.
func LoadBytes(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, &Error{Code: ErrCodeParse, Message: fmt.Sprintf("schema: %v", err)}
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, &Error{Code: ErrCodeParse, Message: err.Error(), Pos: positionOf(err)}
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Message: err.Error(), Pos: positionOf(err)}
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Message: err.Error(), Pos: positionOf(err)}
	}
	return cfg, nil
}

// FrameInterval returns the frame spacing as a duration.
func (c Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

// Level maps the configured log level onto slog.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func positionOf(err error) token.Pos {
	for _, e := range cueerrors.Errors(err) {
		if pos := e.Position(); pos.IsValid() {
			return pos
		}
	}
	return token.NoPos
}
