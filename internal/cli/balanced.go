package cli

import (
	"fmt"
	"io"

	"github.com/msto63/grpc-sample/internal/samples"
	"github.com/msto63/grpc-sample/pkg/core/config"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	"github.com/msto63/grpc-sample/pkg/resolver"
	"github.com/spf13/cobra"
)

// SetDefault changes the default of an already registered flag
func SetDefault(cmd *cobra.Command, name, value string) {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		return
	}
	f.Value.Set(value)
	f.DefValue = value
}

// BalancedFrom connects to the configured registry and describes the
// registered hello service. The returned func closes the registry client.
func BalancedFrom(cfg *config.Config) (samples.Balanced, func() error, error) {
	client, err := discovery.NewRemoteClient(cfg.Registry.Address)
	if err != nil {
		return samples.Balanced{}, nil, err
	}
	return samples.Balanced{
		Registry: client,
		Service:  cfg.Server.ServiceName,
		Resolver: resolver.Config{
			RefreshInterval:    cfg.Resolver.RefreshInterval.Duration,
			MinResolveInterval: cfg.Resolver.MinResolveInterval.Duration,
		},
	}, client.Close, nil
}

// PrintDistribution writes calls per backend
func PrintDistribution(w io.Writer, title string, d samples.Distribution) {
	total := len(d.Replies)
	rows := make([][]string, 0, len(d.Counts)+1)
	for _, addr := range d.Backends() {
		n := d.Counts[addr]
		rows = append(rows, []string{addr, fmt.Sprint(n), fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))})
	}
	if d.Errors > 0 {
		rows = append(rows, []string{ErrorStyle.Render("failed"), fmt.Sprint(d.Errors), ""})
	}
	PrintTable(w, title, []string{"Backend", "Calls", "Share"}, rows)
}

// BalancedServerCommand runs count address-replying servers that register
// with the registry
func BalancedServerCommand(env *Env, short string, count int, setups ...ServerSetup) *cobra.Command {
	cmd := ServerCommand(env, short, count, setups...)
	SetDefault(cmd, "behavior", "address")
	SetDefault(cmd, "register", "true")
	return cmd
}

// BalancedClientCommand runs fn against the registered service
func BalancedClientCommand(env *Env, short string, fn func(cmd *cobra.Command, opts samples.Options, b samples.Balanced) error) *cobra.Command {
	return ClientCommand(env, short, func(cmd *cobra.Command, opts samples.Options) error {
		b, closeRegistry, err := BalancedFrom(env.Config)
		if err != nil {
			return err
		}
		defer closeRegistry()
		return fn(cmd, opts, b)
	})
}
