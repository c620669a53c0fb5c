// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the job engine's structured logging wrapper around
// log/slog, mirroring the conventions the rest of the corpus applies to its
// own slog wrapper: a small Config, an env-driven loader, and a set of
// standard field-name constants so call sites stay consistent.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format is the log output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Standard structured field keys used across the engine.
const (
	JobIDKey         = "job_id"
	InstanceIDKey    = "instance_id"
	SnapshotTrackKey = "snapshot_track"
	PoolKey          = "pool"
	StepIndexKey     = "step_index"
)

// Config holds logger configuration.
type Config struct {
	Level  slog.Level
	Format Format
	Output io.Writer
}

// FromEnv builds a Config from ENGINE_LOG_LEVEL / ENGINE_LOG_FORMAT.
func FromEnv() Config {
	cfg := Config{Level: slog.LevelInfo, Format: FormatText, Output: os.Stderr}

	switch strings.ToLower(os.Getenv("ENGINE_LOG_LEVEL")) {
	case "debug":
		cfg.Level = slog.LevelDebug
	case "warn":
		cfg.Level = slog.LevelWarn
	case "error":
		cfg.Level = slog.LevelError
	}

	if strings.ToLower(os.Getenv("ENGINE_LOG_FORMAT")) == "json" {
		cfg.Format = FormatJSON
	}

	return cfg
}

// New builds a *slog.Logger from cfg.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}
