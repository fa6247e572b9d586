package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

type KafkaClient interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Client publishes alert events to the configured topic. Records are keyed
// by network so per-network ordering survives partitioning.
type Client struct {
	kcl KafkaClient
}

func NewClient(kafkaClient KafkaClient) *Client {
	return &Client{
		kcl: kafkaClient,
	}
}

func (kc *Client) PublishAlerts(ctx context.Context, txs []entities.Transaction) error {
	wg := sync.WaitGroup{}
	errorChannel := make(chan error, len(txs))

	for _, tx := range txs {
		record, err := createAlertRecord(tx)
		if err != nil {
			errorChannel <- err
			break
		}

		wg.Add(1)
		kc.kcl.Produce(ctx, record, func(_ *kgo.Record, err error) {
			defer wg.Done()
			if err != nil {
				errorChannel <- err
				return
			}
			errorChannel <- nil
		})
	}

	wg.Wait()
	close(errorChannel)

	for err := range errorChannel {
		if err != nil {
			return errors.New("encountered errors while producing alert records")
		}
	}

	return nil
}

func createAlertRecord(tx entities.Transaction) (*kgo.Record, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshalling transaction to json: %w", err)
	}

	return &kgo.Record{
		Key:   []byte(tx.Network),
		Value: payload,
	}, nil
}
