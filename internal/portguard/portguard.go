// Package portguard verifies every listen endpoint before any component
// starts. Binding failures at startup are far easier to act on than a
// half-started system.
package portguard

import (
	"fmt"
	"net"

	"go.uber.org/zap"
)

// Endpoint is one address the system intends to bind.
type Endpoint struct {
	Name    string
	Network string // "tcp" or "udp"
	Addr    string // host:port
}

// TCP and UDP build endpoints for the two families.
func TCP(name, addr string) Endpoint { return Endpoint{Name: name, Network: "tcp", Addr: addr} }
func UDP(name, addr string) Endpoint { return Endpoint{Name: name, Network: "udp", Addr: addr} }

// Check trial-binds every endpoint and releases it again. The first
// conflict is logged as an error and returned; the real binds happen later
// in each component's Start.
func Check(logger *zap.Logger, endpoints ...Endpoint) error {
	for _, ep := range endpoints {
		if err := tryBind(ep); err != nil {
			logger.Error("port not available",
				zap.String("endpoint", ep.Name),
				zap.String("network", ep.Network),
				zap.String("addr", ep.Addr),
				zap.Error(err))
			return fmt.Errorf("%s port in use: %s/%s: %w", ep.Name, ep.Network, ep.Addr, err)
		}
	}
	logger.Info("all ports available", zap.Int("checked", len(endpoints)))
	return nil
}

func tryBind(ep Endpoint) error {
	switch ep.Network {
	case "udp":
		conn, err := net.ListenPacket("udp", ep.Addr)
		if err != nil {
			return err
		}
		return conn.Close()
	default:
		ln, err := net.Listen("tcp", ep.Addr)
		if err != nil {
			return err
		}
		return ln.Close()
	}
}
