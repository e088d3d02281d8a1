// Package supervisor starts the system's components in dependency order and
// stops them in reverse. A component that fails to start unwinds everything
// already running.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// stopTimeout bounds how long one component may take to shut down.
const stopTimeout = 3 * time.Second

// Component is one startable unit. Stop may be nil for components with no
// teardown.
type Component struct {
	Name  string
	Start func() error
	Stop  func(ctx context.Context) error
}

// Supervisor tracks which components are running.
type Supervisor struct {
	logger  *zap.Logger
	timeout time.Duration
	started []Component
}

// New returns an idle supervisor.
func New(logger *zap.Logger) *Supervisor {
	return &Supervisor{logger: logger, timeout: stopTimeout}
}

// Start brings the components up in order. On failure it stops the ones
// already started, in reverse, and returns the failing component's error.
func (s *Supervisor) Start(components ...Component) error {
	for _, c := range components {
		s.logger.Info("starting component", zap.String("component", c.Name))
		if err := c.Start(); err != nil {
			s.logger.Error("component failed to start",
				zap.String("component", c.Name), zap.Error(err))
			s.Stop()
			return fmt.Errorf("start %s: %w", c.Name, err)
		}
		s.started = append(s.started, c)
	}
	return nil
}

// Stop shuts every running component down in reverse start order. Each one
// gets its own timeout so a wedged component cannot block the rest.
func (s *Supervisor) Stop() {
	for i := len(s.started) - 1; i >= 0; i-- {
		c := s.started[i]
		if c.Stop == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := c.Stop(ctx); err != nil {
			s.logger.Warn("component stop failed",
				zap.String("component", c.Name), zap.Error(err))
		} else {
			s.logger.Info("component stopped", zap.String("component", c.Name))
		}
		cancel()
	}
	s.started = nil
}
