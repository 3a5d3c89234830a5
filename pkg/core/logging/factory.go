// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     logging
// Description: Process-wide logger configuration
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package logging

import (
	"fmt"
	"io"
	"os"
)

// LoggerConfig holds configuration for the shared logger core
type LoggerConfig struct {
	// Log level (trace, debug, info, warn, error)
	Level string

	// Output format: "json" or "text" (default: json)
	Format string

	// Output file; empty means stderr
	File string

	// Additional outputs besides the primary one
	AdditionalOutputs []io.Writer

	// Additional entry sinks, e.g. Cloud Logging
	Sinks []Sink
}

// DefaultLoggerConfig returns a default configuration
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:  "info",
		Format: "json",
	}
}

// Configure applies cfg to every logger created with New. The returned
// function closes the output file and the sinks.
func Configure(cfg LoggerConfig) (func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var output io.Writer = os.Stderr
	var file *os.File
	if cfg.File != "" {
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
	}
	if len(cfg.AdditionalOutputs) > 0 {
		writers := append([]io.Writer{output}, cfg.AdditionalOutputs...)
		output = io.MultiWriter(writers...)
	}

	std.mu.Lock()
	std.level = level
	std.formatter = formatterFor(ParseFormat(cfg.Format))
	std.output = output
	std.sinks = append([]Sink(nil), cfg.Sinks...)
	std.mu.Unlock()

	sinks := cfg.Sinks
	return func() error {
		var firstErr error
		for _, s := range sinks {
			if err := s.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if file != nil {
			std.mu.Lock()
			std.output = os.Stderr
			std.sinks = nil
			std.mu.Unlock()
			if err := file.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}

// SetLevel changes the level of the shared core
func SetLevel(level Level) {
	std.mu.Lock()
	std.level = level
	std.mu.Unlock()
}

// GetLevel returns the level of the shared core
func GetLevel() Level {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.level
}
