package pebbledb

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/cockroachdb/pebble"
)

var ErrNotFound = errors.New("store resource not found")

const subscriberKeyPrefix = 0x00

type Store struct {
	db *pebble.DB
}

func NewSubscriberStore(storeDir string) (*Store, error) {
	db, err := pebble.Open(filepath.Join(storeDir, "subscriber-store"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %v", err)
	}

	return &Store{db: db}, nil
}

func (ss *Store) SetSubscriber(subscriber entities.Subscriber) error {
	key := subscriberKey(subscriber.ChatID)

	value, err := json.Marshal(subscriber)
	if err != nil {
		return fmt.Errorf("marshalling subscriber: %v", err)
	}

	err = ss.db.Set(key, value, pebble.Sync)
	if err != nil {
		return fmt.Errorf("setting subscriber: %v", err)
	}

	return nil
}

func (ss *Store) GetSubscriber(chatID string) (entities.Subscriber, error) {
	key := subscriberKey(chatID)

	value, closer, err := ss.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return entities.Subscriber{}, ErrNotFound
	}
	if err != nil {
		return entities.Subscriber{}, fmt.Errorf("getting subscriber: %v", err)
	}
	defer closer.Close()

	var subscriber entities.Subscriber
	if err := json.Unmarshal(value, &subscriber); err != nil {
		return entities.Subscriber{}, fmt.Errorf("unmarshalling subscriber: %v", err)
	}

	return subscriber, nil
}

func (ss *Store) GetAllSubscribers() ([]entities.Subscriber, error) {
	iter, err := ss.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{subscriberKeyPrefix},
		UpperBound: []byte{subscriberKeyPrefix + 1},
	})
	if err != nil {
		return nil, fmt.Errorf("creating iterator: %v", err)
	}
	defer iter.Close()

	var subscribers []entities.Subscriber
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("getting value from iter: %v", err)
		}

		var subscriber entities.Subscriber
		if err := json.Unmarshal(value, &subscriber); err != nil {
			return nil, fmt.Errorf("unmarshalling subscriber: %v", err)
		}
		subscribers = append(subscribers, subscriber)
	}

	return subscribers, nil
}

func (ss *Store) Close() error {
	return ss.db.Close()
}

func subscriberKey(chatID string) []byte {
	key := []byte{subscriberKeyPrefix}
	return append(key, []byte(chatID)...)
}
