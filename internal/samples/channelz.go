package samples

import (
	"context"

	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"
)

// ChannelSummary is one top channel as reported by channelz
type ChannelSummary struct {
	ID        int64
	Target    string
	State     string
	Started   int64
	Succeeded int64
	Failed    int64
}

// ServerSummary is one server as reported by channelz
type ServerSummary struct {
	ID        int64
	Started   int64
	Succeeded int64
	Failed    int64
	Listeners int
}

// ChannelzReport is what the channelz service returned
type ChannelzReport struct {
	Replies  []string
	Channels []ChannelSummary
	Servers  []ServerSummary
}

// RunChannelz sends the hello calls, then asks the channelz service at
// admin (the hello target when empty) for its top channels and servers
func RunChannelz(ctx context.Context, opts Options, admin string) (ChannelzReport, error) {
	var report ChannelzReport
	replies, err := RunHelloWorld(ctx, opts)
	if err != nil {
		return report, err
	}
	report.Replies = replies

	if admin != "" {
		opts.Target = admin
	}
	conn, err := opts.dial()
	if err != nil {
		return report, err
	}
	defer conn.Close()
	client := channelzpb.NewChannelzClient(conn)

	ctx, cancel := opts.context(ctx)
	defer cancel()

	channels, err := client.GetTopChannels(ctx, &channelzpb.GetTopChannelsRequest{})
	if err != nil {
		return report, err
	}
	for _, ch := range channels.GetChannel() {
		data := ch.GetData()
		report.Channels = append(report.Channels, ChannelSummary{
			ID:        ch.GetRef().GetChannelId(),
			Target:    data.GetTarget(),
			State:     data.GetState().GetState().String(),
			Started:   data.GetCallsStarted(),
			Succeeded: data.GetCallsSucceeded(),
			Failed:    data.GetCallsFailed(),
		})
	}

	servers, err := client.GetServers(ctx, &channelzpb.GetServersRequest{})
	if err != nil {
		return report, err
	}
	for _, s := range servers.GetServer() {
		data := s.GetData()
		report.Servers = append(report.Servers, ServerSummary{
			ID:        s.GetRef().GetServerId(),
			Started:   data.GetCallsStarted(),
			Succeeded: data.GetCallsSucceeded(),
			Failed:    data.GetCallsFailed(),
			Listeners: len(s.GetListenSocket()),
		})
	}
	samplesLogger.Info("Channelz queried", "channels", len(report.Channels), "servers", len(report.Servers))
	return report, nil
}
