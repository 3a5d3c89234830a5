package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/msto63/grpc-sample/pkg/core/config"
	"github.com/spf13/cobra"
)

func TestNewRoot_LoadsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "[client]\ntarget = \"example:1234\"\nmessage = \"Gopher\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	root, env := NewRoot("sample", "test")
	var flags ClientFlags
	var gotTarget, gotMessage string
	client := &cobra.Command{
		Use: "client",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.Options(env.Config)
			gotTarget, gotMessage = opts.Target, opts.Message
			return nil
		},
	}
	flags.Register(client)
	root.AddCommand(client)

	root.SetArgs([]string{"--config", path, "--log-level", "debug", "client", "-m", "Flag"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotTarget != "example:1234" || gotMessage != "Flag" {
		t.Errorf("options = %q/%q", gotTarget, gotMessage)
	}
	if env.Config.General.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want the flag value", env.Config.General.LogLevel)
	}
}

func TestNewRoot_BadConfig(t *testing.T) {
	root, _ := NewRoot("sample", "test")
	root.AddCommand(&cobra.Command{Use: "noop", RunE: func(*cobra.Command, []string) error { return nil }})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.toml"), "noop"})
	if err := root.Execute(); err == nil {
		t.Error("Execute() with a missing config file should fail")
	}
}

func TestClientFlags_Defaults(t *testing.T) {
	var flags ClientFlags
	opts := flags.Options(config.Default())
	if opts.Target != "localhost:9090" || opts.Message != "World" || opts.Requests != 1 {
		t.Errorf("Options() = %+v", opts)
	}
}

func TestPrintReplies(t *testing.T) {
	var buf bytes.Buffer
	PrintReplies(&buf, "Replies", []string{"Hello a", "Hello b"})
	out := buf.String()
	for _, want := range []string{"Replies", "Reply", "Hello a", "Hello b"} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
}
