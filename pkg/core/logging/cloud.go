package logging

import (
	"context"
	"fmt"

	cl "cloud.google.com/go/logging"
)

// CloudSink forwards entries to Google Cloud Logging.
type CloudSink struct {
	client *cl.Client
	logger cloudLogger
	labels map[string]string
}

// cloudLogger is the subset of *cl.Logger the sink uses.
type cloudLogger interface {
	Log(e cl.Entry)
	Flush() error
}

// NewCloudSink creates a sink writing to logID in the given GCP project.
func NewCloudSink(ctx context.Context, project, logID string, labels map[string]string) (*CloudSink, error) {
	client, err := cl.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud logging client: %w", err)
	}
	return &CloudSink{
		client: client,
		logger: client.Logger(logID),
		labels: labels,
	}, nil
}

// Write converts the entry and queues it; the client batches uploads.
func (s *CloudSink) Write(entry *Entry) error {
	s.logger.Log(toCloudEntry(entry, s.labels))
	return nil
}

// Close flushes pending entries and closes the client.
func (s *CloudSink) Close() error {
	if err := s.logger.Flush(); err != nil {
		return err
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func toCloudEntry(entry *Entry, labels map[string]string) cl.Entry {
	payload := make(map[string]interface{}, len(entry.Fields)+2)
	for k, v := range entry.Fields {
		payload[k] = jsonValue(v)
	}
	payload["message"] = entry.Message
	if entry.Logger != "" {
		payload["logger"] = entry.Logger
	}
	return cl.Entry{
		Timestamp: entry.Timestamp,
		Severity:  cloudSeverity(entry.Level),
		Payload:   payload,
		Labels:    labels,
	}
}

func cloudSeverity(l Level) cl.Severity {
	switch l {
	case LevelTrace, LevelDebug:
		return cl.Debug
	case LevelInfo:
		return cl.Info
	case LevelWarn:
		return cl.Warning
	case LevelError:
		return cl.Error
	case LevelFatal:
		return cl.Critical
	default:
		return cl.Default
	}
}
