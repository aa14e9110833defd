package websocket

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Stats is a point-in-time view of the transport.
type Stats struct {
	ActiveConnections int
	// HotClients counts identities above half of their per-minute budget.
	HotClients     int
	TrackedClients int
}

// Stats returns the current connection and rate limit statistics.
func (s *Server) Stats() Stats {
	return Stats{
		ActiveConnections: s.registry.Len(),
		HotClients:        s.limiter.HotClients(),
		TrackedClients:    s.limiter.Tracked(),
	}
}

// monitor logs Stats every MonitorInterval until ctx is done.
func (s *Server) monitor(ctx context.Context) error {
	ticker := s.cfg.Clock.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.reportStats()
		}
	}
}

func (s *Server) reportStats() {
	st := s.Stats()

	s.metrics.ConnectionsActive.Set(float64(st.ActiveConnections))
	s.metrics.HotClients.Set(float64(st.HotClients))
	s.metrics.TrackedClients.Set(float64(st.TrackedClients))

	log := s.log.WithFields(logrus.Fields{
		"active_connections": st.ActiveConnections,
		"hot_clients":        st.HotClients,
		"tracked_clients":    st.TrackedClients,
	})
	log.Infof("Connection status: %d active clients", st.ActiveConnections)
	if st.TrackedClients > 0 {
		log.Infof("Rate limit status: %d clients over 50%% of rate limit", st.HotClients)
	}
}
