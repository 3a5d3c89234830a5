// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     policy
// Description: Service config parsing, retry and hedging policies
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

// Package policy parses the subset of the gRPC service config the samples
// use. Retries are left to grpc-go, which reads the same JSON as default
// service config; hedging runs in a client interceptor.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

// MaxAttemptsLimit caps maxAttempts of retry and hedging policies
const MaxAttemptsLimit = 5

// Duration is a protobuf JSON duration such as "0.5s"
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if !strings.HasSuffix(s, "s") {
		return fmt.Errorf("duration %q must end in 's'", s)
	}
	secs, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(time.Duration(d).Seconds(), 'f', -1, 64) + "s")
}

// Std returns the value as time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServiceConfig is a parsed service config
type ServiceConfig struct {
	MethodConfig        []*MethodConfig              `json:"methodConfig,omitempty"`
	RetryThrottling     *RetryThrottling             `json:"retryThrottling,omitempty"`
	LoadBalancingConfig []map[string]json.RawMessage `json:"loadBalancingConfig,omitempty"`
	HealthCheckConfig   *HealthCheckConfig           `json:"healthCheckConfig,omitempty"`

	raw string
}

// MethodName selects methods; an empty Method matches the whole service
// and an empty Service is the default for every method.
type MethodName struct {
	Service string `json:"service,omitempty"`
	Method  string `json:"method,omitempty"`
}

type MethodConfig struct {
	Name          []MethodName   `json:"name"`
	WaitForReady  *bool          `json:"waitForReady,omitempty"`
	Timeout       *Duration      `json:"timeout,omitempty"`
	RetryPolicy   *RetryPolicy   `json:"retryPolicy,omitempty"`
	HedgingPolicy *HedgingPolicy `json:"hedgingPolicy,omitempty"`
}

type RetryPolicy struct {
	MaxAttempts          int          `json:"maxAttempts"`
	InitialBackoff       Duration     `json:"initialBackoff"`
	MaxBackoff           Duration     `json:"maxBackoff"`
	BackoffMultiplier    float64      `json:"backoffMultiplier"`
	RetryableStatusCodes []codes.Code `json:"retryableStatusCodes"`
}

type HedgingPolicy struct {
	MaxAttempts         int          `json:"maxAttempts"`
	HedgingDelay        Duration     `json:"hedgingDelay,omitempty"`
	NonFatalStatusCodes []codes.Code `json:"nonFatalStatusCodes,omitempty"`
}

// NonFatal reports whether a failure with c lets hedging continue
func (p *HedgingPolicy) NonFatal(c codes.Code) bool {
	for _, nf := range p.NonFatalStatusCodes {
		if nf == c {
			return true
		}
	}
	return false
}

type RetryThrottling struct {
	MaxTokens  float64 `json:"maxTokens"`
	TokenRatio float64 `json:"tokenRatio"`
}

type HealthCheckConfig struct {
	ServiceName string `json:"serviceName"`
}

// Parse parses and validates a service config document
func Parse(data []byte) (*ServiceConfig, error) {
	sc := &ServiceConfig{}
	if err := json.Unmarshal(data, sc); err != nil {
		return nil, coreerrors.Wrap(err, "invalid service config").
			WithCode(coreerrors.CodeInvalidConfig).
			WithOperation("policy.Parse")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	sc.raw = string(data)
	return sc, nil
}

// Load reads and parses a service config file
func Load(path string) (*ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service config: %w", err)
	}
	return Parse(data)
}

func invalid(format string, args ...interface{}) error {
	return coreerrors.Newf(format, args...).
		WithCode(coreerrors.CodeInvalidConfig).
		WithOperation("policy.Validate")
}

// Validate checks the policies. maxAttempts above MaxAttemptsLimit is
// lowered to the limit, as grpc does.
func (sc *ServiceConfig) Validate() error {
	for i, mc := range sc.MethodConfig {
		if mc.RetryPolicy != nil && mc.HedgingPolicy != nil {
			return invalid("methodConfig[%d]: retryPolicy and hedgingPolicy are mutually exclusive", i)
		}
		if mc.Timeout != nil && *mc.Timeout < 0 {
			return invalid("methodConfig[%d]: timeout must not be negative", i)
		}
		if rp := mc.RetryPolicy; rp != nil {
			if rp.MaxAttempts < 2 {
				return invalid("methodConfig[%d]: retryPolicy.maxAttempts must be at least 2", i)
			}
			if rp.InitialBackoff <= 0 || rp.MaxBackoff <= 0 {
				return invalid("methodConfig[%d]: retryPolicy backoffs must be positive", i)
			}
			if rp.BackoffMultiplier <= 0 {
				return invalid("methodConfig[%d]: retryPolicy.backoffMultiplier must be positive", i)
			}
			if len(rp.RetryableStatusCodes) == 0 {
				return invalid("methodConfig[%d]: retryPolicy.retryableStatusCodes must not be empty", i)
			}
			for _, c := range rp.RetryableStatusCodes {
				if c == codes.OK {
					return invalid("methodConfig[%d]: OK is not a retryable status", i)
				}
			}
			rp.MaxAttempts = min(rp.MaxAttempts, MaxAttemptsLimit)
		}
		if hp := mc.HedgingPolicy; hp != nil {
			if hp.MaxAttempts < 2 {
				return invalid("methodConfig[%d]: hedgingPolicy.maxAttempts must be at least 2", i)
			}
			if hp.HedgingDelay < 0 {
				return invalid("methodConfig[%d]: hedgingPolicy.hedgingDelay must not be negative", i)
			}
			hp.MaxAttempts = min(hp.MaxAttempts, MaxAttemptsLimit)
		}
	}
	if rt := sc.RetryThrottling; rt != nil {
		if rt.MaxTokens <= 0 || rt.MaxTokens > 1000 {
			return invalid("retryThrottling.maxTokens must be in (0, 1000]")
		}
		if rt.TokenRatio <= 0 {
			return invalid("retryThrottling.tokenRatio must be positive")
		}
	}
	return nil
}

// Lookup returns the method config for "/service/method": the exact
// method first, then the service wildcard, then the default entry.
func (sc *ServiceConfig) Lookup(fullMethod string) *MethodConfig {
	service, method := splitFullMethod(fullMethod)
	var serviceMatch, defaultMatch *MethodConfig
	for _, mc := range sc.MethodConfig {
		for _, n := range mc.Name {
			switch {
			case n.Service == service && n.Method == method && method != "":
				return mc
			case n.Service == service && n.Method == "" && serviceMatch == nil:
				serviceMatch = mc
			case n.Service == "" && n.Method == "" && defaultMatch == nil:
				defaultMatch = mc
			}
		}
	}
	if serviceMatch != nil {
		return serviceMatch
	}
	return defaultMatch
}

func splitFullMethod(fullMethod string) (service, method string) {
	s := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// JSON returns the document the config was parsed from, or a fresh
// encoding when it was built in code.
func (sc *ServiceConfig) JSON() string {
	if sc.raw != "" {
		return sc.raw
	}
	b, _ := json.Marshal(sc)
	return string(b)
}

// HasHedging reports whether any method config carries a hedging policy
func (sc *ServiceConfig) HasHedging() bool {
	for _, mc := range sc.MethodConfig {
		if mc.HedgingPolicy != nil {
			return true
		}
	}
	return false
}

// DialOptions installs the config as default service config (retries,
// load balancing, health checking) and the hedging interceptor when
// needed.
func (sc *ServiceConfig) DialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{grpc.WithDefaultServiceConfig(sc.JSON())}
	if sc.HasHedging() {
		opts = append(opts, grpc.WithChainUnaryInterceptor(HedgingInterceptor(sc)))
	}
	return opts
}
