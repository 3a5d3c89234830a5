// Package registry holds the wire types, codec and service descriptor of
// the registry.v1.Registry gRPC service. Messages are plain structs
// encoded as JSON on the wire.
package registry

import (
	"encoding/json"
	"time"

	"google.golang.org/grpc/encoding"
)

// ContentSubtype is the gRPC content-subtype clients must request
const ContentSubtype = "json"

// Instance is a registered service instance
type Instance struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Version       string            `json:"version,omitempty"`
	Address       string            `json:"address"`
	Port          int               `json:"port"`
	Status        string            `json:"status,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Check         *Check            `json:"check,omitempty"`
	LastHeartbeat time.Time         `json:"last_heartbeat,omitempty"`
	RegisteredAt  time.Time         `json:"registered_at,omitempty"`
}

// Check describes how the registry probes an instance
type Check struct {
	Type     string        `json:"type"`
	Target   string        `json:"target,omitempty"`
	Service  string        `json:"service,omitempty"`
	Path     string        `json:"path,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

type RegisterRequest struct {
	Instance *Instance `json:"instance"`
}

type RegisterResponse struct {
	ID string `json:"id"`
}

type DeregisterRequest struct {
	ID string `json:"id"`
}

type DeregisterResponse struct{}

type HeartbeatRequest struct {
	ID string `json:"id"`
}

type HeartbeatResponse struct {
	Status string `json:"status"`
}

// DiscoverRequest selects instances by name; only healthy ones unless
// IncludeUnhealthy is set. Tag, when non-empty, must be among the tags.
type DiscoverRequest struct {
	Name             string `json:"name"`
	Tag              string `json:"tag,omitempty"`
	IncludeUnhealthy bool   `json:"include_unhealthy,omitempty"`
}

type DiscoverResponse struct {
	Instances []*Instance `json:"instances"`
}

type GetRequest struct {
	ID string `json:"id"`
}

type GetResponse struct {
	Instance *Instance `json:"instance"`
}

type ListRequest struct{}

type ListResponse struct {
	Instances []*Instance `json:"instances"`
}

// jsonCodec serves the registry without generated protobuf code.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return ContentSubtype
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
