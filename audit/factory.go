package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"disputedesk/config"
)

// FromConfig builds the configured sink. The returned close func flushes any
// buffered deliveries and must be called on shutdown.
func FromConfig(cfg config.AuditConfig, logger *slog.Logger) (Emitter, func(context.Context), error) {
	noClose := func(context.Context) {}

	switch cfg.Sink {
	case "", "log":
		return NewLogEmitter(logger), noClose, nil
	case "none":
		return Nop{}, noClose, nil
	case "kafka":
		client, err := NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func(ctx context.Context) {
			flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := client.Flush(flushCtx); err != nil && logger != nil {
				logger.Warn("flush audit producer", "error", err)
			}
			client.Close()
		}
		return NewKafkaEmitter(client, cfg.Kafka.Topic, logger), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("audit: unknown sink %q", cfg.Sink)
	}
}
