// Package heartbeat periodically publishes a retained liveness record so
// bus observers can tell a quiet service from a dead one.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"headstage-go/bus"
)

var (
	beatTopic   = bus.T("service", "heartbeat")
	configTopic = bus.T("config", "heartbeat")
)

// Beat is the retained payload on service/heartbeat.
type Beat struct {
	Seq      uint64 `json:"seq"`
	UptimeMS int64  `json:"uptime_ms"`
	TSms     int64  `json:"ts_ms"`
}

type Service struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Start launches the heartbeat loop. It retains the latest beat on the bus
// and reconfigures its interval from retained config/heartbeat messages.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	if s.Interval <= 0 {
		s.Interval = time.Second
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	go s.loop(ctx, conn)
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(configTopic)
	defer cfgSub.Unsubscribe()

	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	start := time.Now()
	var seq uint64

	for {
		select {
		case <-ctx.Done():
			s.Logger.Debug("heartbeat stopping")
			return
		case t := <-tick.C:
			seq++
			conn.Publish(conn.NewMessage(beatTopic, Beat{
				Seq:      seq,
				UptimeMS: t.Sub(start).Milliseconds(),
				TSms:     t.UnixMilli(),
			}, true))
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			m, ok := msg.Payload.(map[string]any)
			if !ok {
				continue
			}
			iv, ok := m["interval_ms"].(float64)
			if !ok || iv <= 0 {
				continue
			}
			s.Interval = time.Duration(iv) * time.Millisecond
			tick.Reset(s.Interval)
			s.Logger.Info("heartbeat interval changed", "interval", s.Interval)
		}
	}
}
