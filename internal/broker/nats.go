package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/babulele/AgroMarketHub-sub000/internal/auction"
	"github.com/babulele/AgroMarketHub-sub000/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// SettlementPublisher delivers settlement records to the external order
// pipeline over NATS JetStream. JetStream persistence gives at-least-once
// delivery; consumers deduplicate by auction id since an auction settles at
// most once.
type SettlementPublisher struct {
	nc            *nats.Conn
	js            jetstream.JetStream
	subjectPrefix string
}

var _ auction.Notifier = (*SettlementPublisher)(nil)

func NewSettlementPublisher(url, stream, subjectPrefix string) (*SettlementPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("auction-settlements"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Auction settlement records for the order pipeline",
		Subjects:    []string{subjectPrefix + ".*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating settlement stream %s: %w", stream, err)
	}

	log.Infof("Settlement stream %s ready on %s", stream, url)
	return &SettlementPublisher{nc: nc, js: js, subjectPrefix: subjectPrefix}, nil
}

// Settle publishes one settlement record. The publish waits for the
// JetStream ack so the record is persisted before the close path returns.
func (p *SettlementPublisher) Settle(ctx context.Context, rec types.Settlement) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling settlement for auction %s: %w", rec.AuctionID, err)
	}

	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, rec.AuctionID)
	ack, err := p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("publishing settlement for auction %s: %w", rec.AuctionID, err)
	}

	log.Debugf("Settlement for auction %s published to %s (seq %d)", rec.AuctionID, subject, ack.Sequence)
	return nil
}

func (p *SettlementPublisher) Close() {
	p.nc.Close()
}
