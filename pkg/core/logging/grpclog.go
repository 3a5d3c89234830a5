package logging

import (
	"fmt"
	"os"
	"strings"

	"google.golang.org/grpc/grpclog"
)

// grpcLogger adapts Logger to grpclog.LoggerV2.
//
// gRPC verbosity translation:
//   - V=0 errors are logged at LevelError.
//   - V=1 warnings are logged at LevelWarn.
//   - V=2 info is logged at LevelDebug.
type grpcLogger struct {
	base   *Logger
	vLevel int
}

// InstallGRPCLogger installs base as gRPC's internal logger. Must be called
// before any gRPC activity.
func InstallGRPCLogger(base *Logger, level Level) {
	grpclog.SetLoggerV2(newGRPCLogger(base, level))
}

func newGRPCLogger(base *Logger, level Level) *grpcLogger {
	return &grpcLogger{base: base, vLevel: translateLevel(level)}
}

// translateLevel maps a logger level to the highest gRPC verbosity it shows.
func translateLevel(l Level) int {
	switch {
	case l >= LevelFatal:
		return -1
	case l == LevelError:
		return 0
	case l == LevelWarn, l == LevelInfo:
		return 1
	default:
		return 2
	}
}

func (gl *grpcLogger) Info(args ...any) {
	if gl.V(2) {
		gl.base.Debug(sprint(args))
	}
}

func (gl *grpcLogger) Infoln(args ...any) {
	if gl.V(2) {
		gl.base.Debug(sprint(args))
	}
}

func (gl *grpcLogger) Infof(format string, args ...any) {
	if gl.V(2) {
		gl.base.Debug(fmt.Sprintf(format, args...))
	}
}

func (gl *grpcLogger) Warning(args ...any) {
	if gl.V(1) {
		gl.base.Warn(sprint(args))
	}
}

func (gl *grpcLogger) Warningln(args ...any) {
	if gl.V(1) {
		gl.base.Warn(sprint(args))
	}
}

func (gl *grpcLogger) Warningf(format string, args ...any) {
	if gl.V(1) {
		gl.base.Warn(fmt.Sprintf(format, args...))
	}
}

func (gl *grpcLogger) Error(args ...any) {
	if gl.V(0) {
		gl.base.Error(sprint(args))
	}
}

func (gl *grpcLogger) Errorln(args ...any) {
	if gl.V(0) {
		gl.base.Error(sprint(args))
	}
}

func (gl *grpcLogger) Errorf(format string, args ...any) {
	if gl.V(0) {
		gl.base.Error(fmt.Sprintf(format, args...))
	}
}

func (gl *grpcLogger) Fatal(args ...any) {
	gl.base.Error(sprint(args))
	fatalExit()
}

func (gl *grpcLogger) Fatalln(args ...any) {
	gl.base.Error(sprint(args))
	fatalExit()
}

func (gl *grpcLogger) Fatalf(format string, args ...any) {
	gl.base.Error(fmt.Sprintf(format, args...))
	fatalExit()
}

func (gl *grpcLogger) V(l int) bool {
	return gl.vLevel >= l
}

// fatalExit is stubbed in tests.
var fatalExit = func() {
	os.Exit(1)
}

func sprint(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}
