// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     version
// Description: Central version management for samples and services
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package version

// Version constants
const (
	// Suite version
	Platform = "1.0.0"

	// Service versions
	Hello    = "1.0.0"
	Registry = "1.0.0"
	Gateway  = "1.0.0"
)

// Commit is set at build time with -ldflags "-X .../version.Commit=..."
var Commit = "dev"

// ServiceVersion returns the version for a given service name
func ServiceVersion(name string) string {
	switch name {
	case "hello", "grpc-server":
		return Hello
	case "registry":
		return Registry
	case "gateway":
		return Gateway
	default:
		return Platform
	}
}

// String returns "<platform> (<commit>)"
func String() string {
	return Platform + " (" + Commit + ")"
}
