package db

import (
	"log"
	"time"

	"backend-pilanitrails/internal/config"

	"github.com/nats-io/nats.go"
)

// ConnectNATS returns nil when no URL is configured; lifecycle events are then skipped.
func ConnectNATS(cfg config.Config) (*nats.Conn, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}

	return nats.Connect(cfg.NATSURL,
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
}
