// Package discovery advertises and finds histeq servers on the local
// network over mDNS, using github.com/grandcat/zeroconf, so a worker
// can join a cluster without being told the server's address.
package discovery

import (
	"context"
	"fmt"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service name servers register under and
// workers browse for.
const ServiceType = "_image_histogram._tcp"

// Server is one discovered server: its instance name plus the two
// ports the work and control sockets listen on.
type Server struct {
	Name        string
	Host        string
	WorkPort    int
	ControlPort int
}

// Advertise registers a server under ServiceType so workers on the
// local network can find it. The returned func stops advertising and
// must be called when the server shuts down.
func Advertise(instance, host string, workPort, controlPort int) (stop func(), err error) {
	server, err := zeroconf.Register(
		instance,
		ServiceType,
		"local.",
		workPort,
		[]string{fmt.Sprintf("control_port=%d", controlPort)},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("discovery: advertise: %w", err)
	}
	return server.Shutdown, nil
}

// Browse resolves every ServiceType instance currently advertised on
// the local network, blocking until ctx is done or browsing fails to
// start.
func Browse(ctx context.Context) ([]Server, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: new resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	var servers []Server
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			servers = append(servers, entryToServer(entry))
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		close(entries)
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}

	<-ctx.Done()
	close(entries)
	<-done
	return servers, nil
}

func entryToServer(entry *zeroconf.ServiceEntry) Server {
	s := Server{
		Name:     entry.Instance,
		WorkPort: entry.Port,
	}
	if len(entry.AddrIPv4) > 0 {
		s.Host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		s.Host = entry.AddrIPv6[0].String()
	}
	for _, txt := range entry.Text {
		var port int
		if n, _ := fmt.Sscanf(txt, "control_port=%d", &port); n == 1 {
			s.ControlPort = port
		}
	}
	return s
}
