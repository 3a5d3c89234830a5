// Package balancer registers the custom_round_robin load balancing policy.
// Select it with the service config
// {"loadBalancingConfig": [{"custom_round_robin": {}}]}.
package balancer

import (
	"sort"
	"sync/atomic"

	"github.com/msto63/grpc-sample/pkg/core/logging"
	"google.golang.org/grpc/balancer"
	"google.golang.org/grpc/balancer/base"
)

// Name is the policy name used in service configs
const Name = "custom_round_robin"

// ServiceConfig selects the policy
const ServiceConfig = `{"loadBalancingConfig": [{"` + Name + `": {}}]}`

var balancerLogger = logging.New("balancer")

func init() {
	balancer.Register(newBuilder())
}

func newBuilder() balancer.Builder {
	return base.NewBalancerBuilder(Name, &pickerBuilder{}, base.Config{HealthCheck: true})
}

type pickerBuilder struct {
	// start rotates the first pick between picker generations
	start atomic.Uint32
}

func (b *pickerBuilder) Build(info base.PickerBuildInfo) balancer.Picker {
	if len(info.ReadySCs) == 0 {
		return base.NewErrPicker(balancer.ErrNoSubConnAvailable)
	}

	p := &picker{}
	for sc, scInfo := range info.ReadySCs {
		p.subConns = append(p.subConns, readySubConn{sc: sc, addr: scInfo.Address.Addr})
	}
	sort.Slice(p.subConns, func(i, j int) bool {
		return p.subConns[i].addr < p.subConns[j].addr
	})
	p.next.Store(b.start.Add(1) - 1)
	balancerLogger.Info("Picker built", "ready", len(p.subConns))
	return p
}

type readySubConn struct {
	sc   balancer.SubConn
	addr string
}

type picker struct {
	subConns []readySubConn
	next     atomic.Uint32
}

// Pick returns the next ready sub-connection; the index wraps around
func (p *picker) Pick(info balancer.PickInfo) (balancer.PickResult, error) {
	n := p.next.Add(1) - 1
	chosen := p.subConns[int(n%uint32(len(p.subConns)))]
	balancerLogger.Info("Picked backend", "method", info.FullMethodName, "address", chosen.addr)
	return balancer.PickResult{SubConn: chosen.sc}, nil
}
