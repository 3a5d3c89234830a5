// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     binlog
// Description: Binary logging of RPCs as grpc.binarylog.v1 entries
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

// Package binlog writes RPC events as length-delimited
// grpc.binarylog.v1.GrpcLogEntry records. Interceptors decide what to log
// from a method filter using grpc's binary log config syntax.
package binlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/msto63/grpc-sample/pkg/core/logging"
	"google.golang.org/grpc/binarylog"
	binlogpb "google.golang.org/grpc/binarylog/grpc_binarylog_v1"
	"google.golang.org/protobuf/encoding/protodelim"
)

var binlogLogger = logging.New("binlog")

// FileSink appends entries to a file. It is safe for concurrent use.
type FileSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *bufio.Writer
	closed bool
}

var _ binarylog.Sink = (*FileSink)(nil)

// NewFileSink creates (or truncates) path and its parent directory
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create binlog directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create binlog file: %w", err)
	}
	binlogLogger.Info("Binary log opened", "path", path)
	return &FileSink{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the file path
func (s *FileSink) Path() string {
	return s.path
}

// Write appends one entry. Entries written after Close are dropped; a
// failed write closes the sink.
func (s *FileSink) Write(entry *binlogpb.GrpcLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		binlogLogger.Warn("Dropping entry written after close",
			"call_id", entry.GetCallId(),
			"type", entry.GetType().String(),
		)
		return nil
	}

	if _, err := protodelim.MarshalTo(s.w, entry); err != nil {
		binlogLogger.Error("Binary log write failed, closing sink", "path", s.path, "error", err)
		s.closeLocked()
		return fmt.Errorf("write binlog entry: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		binlogLogger.Error("Binary log flush failed, closing sink", "path", s.path, "error", err)
		s.closeLocked()
		return fmt.Errorf("flush binlog: %w", err)
	}
	return nil
}

// Close flushes and closes the file; later calls are no-ops
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *FileSink) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	binlogLogger.Info("Binary log closed", "path", s.path)
	return errors.Join(flushErr, closeErr)
}

// ReadAll decodes every entry of a binlog file
func ReadAll(path string) ([]*binlogpb.GrpcLogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open binlog: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads length-delimited entries until EOF
func Decode(r io.Reader) ([]*binlogpb.GrpcLogEntry, error) {
	br := bufio.NewReader(r)
	var entries []*binlogpb.GrpcLogEntry
	for {
		entry := &binlogpb.GrpcLogEntry{}
		err := protodelim.UnmarshalFrom(br, entry)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("decode entry %d: %w", len(entries), err)
		}
		entries = append(entries, entry)
	}
}
