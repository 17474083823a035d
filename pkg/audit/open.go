package audit

import (
	"fmt"

	"joinguard-hq/warden/pkg/config"
)

// Open builds the sink selected by cfg.Sink.
func Open(cfg config.AuditConfig) (Sink, error) {
	switch cfg.Sink {
	case "", "log":
		return NewLogSink(), nil
	case "none":
		return discardSink{}, nil
	case "sqlite":
		return NewSQLiteSink(cfg.SQLite.Path, cfg.SQLite.BusyTimeout)
	case "nats":
		return NewNATSSink(NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Name:          cfg.NATS.Name,
		})
	default:
		return nil, fmt.Errorf("unknown audit sink %q", cfg.Sink)
	}
}
