package errors

import (
	"context"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestError_Message(t *testing.T) {
	base := fmt.Errorf("dial tcp: refused")
	err := Wrap(base, "connect registry").WithOperation("discovery.Register")

	want := "discovery.Register: connect registry: dial tcp: refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, base) {
		t.Error("wrapped error should match its cause")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestWrap_InheritsCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"coded", New("missing").WithCode(CodeNotFound), CodeNotFound},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"canceled", fmt.Errorf("op: %w", context.Canceled), CodeCanceled},
		{"status", status.Error(codes.Unavailable, "down"), CodeServiceUnavailable},
		{"plain", fmt.Errorf("plain"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Wrap(tt.err, "outer").Code(); got != tt.want {
				t.Errorf("Code() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGRPCStatus(t *testing.T) {
	err := New("no such instance").WithCode(CodeNotFound)

	if got := status.Code(err); got != codes.NotFound {
		t.Errorf("status.Code() = %v, want NotFound", got)
	}
	if got := status.Code(ToStatus(fmt.Errorf("wrapped: %w", err))); got != codes.NotFound {
		t.Errorf("ToStatus code = %v, want NotFound", got)
	}
	orig := status.Error(codes.PermissionDenied, "nope")
	if got := ToStatus(orig); status.Code(got) != codes.PermissionDenied {
		t.Errorf("status errors should pass through, got %v", got)
	}
	if ToStatus(nil) != nil {
		t.Error("ToStatus(nil) should be nil")
	}
}

func TestHasCode(t *testing.T) {
	inner := New("locked").WithCode(CodeStorageError)
	outer := Wrap(inner, "register").WithCode(CodeInternal)

	if !HasCode(outer, CodeStorageError) {
		t.Error("HasCode should find inner code")
	}
	if !HasCode(outer, CodeInternal) {
		t.Error("HasCode should find outer code")
	}
	if HasCode(outer, CodeTimeout) {
		t.Error("HasCode found a code that is not in the chain")
	}
	if GetCode(outer) != CodeInternal {
		t.Errorf("GetCode() = %v, want INTERNAL", GetCode(outer))
	}
}

func TestLogFields(t *testing.T) {
	err := New("bad port").WithCode(CodeInvalidInput).WithOperation("config.Validate").
		WithDetail("port", 0)

	kv := err.LogFields()
	fields := map[string]interface{}{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i].(string)] = kv[i+1]
	}
	if fields["error_code"] != "INVALID_INPUT" {
		t.Errorf("error_code = %v", fields["error_code"])
	}
	if fields["operation"] != "config.Validate" {
		t.Errorf("operation = %v", fields["operation"])
	}
	if fields["error_port"] != 0 {
		t.Errorf("error_port = %v", fields["error_port"])
	}
}

func TestCode_Mapping(t *testing.T) {
	tests := []struct {
		code Code
		grpc codes.Code
		http int
	}{
		{CodeNotFound, codes.NotFound, 404},
		{CodeInvalidInput, codes.InvalidArgument, 400},
		{CodeServiceUnavailable, codes.Unavailable, 503},
		{CodeTimeout, codes.DeadlineExceeded, 504},
		{CodeUnknown, codes.Unknown, 500},
	}
	for _, tt := range tests {
		if got := tt.code.GRPCCode(); got != tt.grpc {
			t.Errorf("%v.GRPCCode() = %v, want %v", tt.code, got, tt.grpc)
		}
		if got := tt.code.HTTPStatus(); got != tt.http {
			t.Errorf("%v.HTTPStatus() = %v, want %v", tt.code, got, tt.http)
		}
		if tt.code != CodeUnknown && FromGRPCCode(tt.grpc) != tt.code {
			t.Errorf("FromGRPCCode(%v) = %v, want %v", tt.grpc, FromGRPCCode(tt.grpc), tt.code)
		}
	}
}
