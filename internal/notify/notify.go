// Package notify publishes committed cart and wishlist changes to NATS.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Change is the message body published for each committed mutation.
type Change struct {
	Client string    `json:"client"`
	Slot   string    `json:"slot"`
	At     time.Time `json:"at"`
	Items  any       `json:"items"`
}

func Subject(slot string) string {
	return "storefront." + slot + ".updated"
}

type NATSPublisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

func ConnectNATS(url string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("storefront"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

// Publish is fire-and-forget; a failed publish is logged and never affects
// the mutation that produced it.
func (p *NATSPublisher) Publish(clientID, slot string, items any) {
	b, err := json.Marshal(Change{Client: clientID, Slot: slot, At: time.Now().UTC(), Items: items})
	if err != nil {
		p.logger.Error("encode change", zap.Error(err))
		return
	}
	if err := p.nc.Publish(Subject(slot), b); err != nil {
		p.logger.Warn("publish change", zap.String("slot", slot), zap.Error(err))
	}
}

func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("nats drain", zap.Error(err))
	}
}
