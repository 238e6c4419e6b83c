/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package chat persists inbound basic messages. Basic message handling is a
// single path: every event maps to one handling routine with no branching on
// prior state.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger-labs/partner-agent/pkg/aries"
	"github.com/hyperledger-labs/partner-agent/pkg/events"
)

// Namespace is the store name of the chat message repository.
const Namespace = "chat_message"

const connIDTagName = "connectionID"

// Provider contains the dependencies of the chat manager.
type Provider interface {
	StorageProvider() storage.Provider
	EventBus() events.Bus
}

// Message is a persisted basic message.
type Message struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	MessageID    string    `json:"message_id,omitempty"`
	Content      string    `json:"content"`
	Incoming     bool      `json:"incoming"`
	SentTime     time.Time `json:"sent_time"`
}

// Manager stores chat messages and notifies subscribers.
type Manager struct {
	store storage.Store
	bus   events.Bus
}

// NewManager returns the chat manager.
func NewManager(p Provider) (*Manager, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("open chat store: %w", err)
	}

	err = p.StorageProvider().SetStoreConfig(Namespace,
		storage.StoreConfiguration{TagNames: []string{connIDTagName}})
	if err != nil {
		return nil, fmt.Errorf("set chat store config: %w", err)
	}

	return &Manager{store: store, bus: p.EventBus()}, nil
}

// HandleMessage persists an inbound basic message and emits the chat
// notification.
func (m *Manager) HandleMessage(ev *aries.BasicMessage) error {
	if ev.ConnectionID == "" {
		return errors.New("basic message without connection id")
	}

	if ev.Content == "" {
		return errors.New("basic message without content")
	}

	msg := &Message{
		ID:           uuid.New().String(),
		ConnectionID: ev.ConnectionID,
		MessageID:    ev.MessageID,
		Content:      ev.Content,
		Incoming:     true,
		SentTime:     ev.SentTime.Or(time.Now().UTC()),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}

	err = m.store.Put(msg.ID, data, storage.Tag{Name: connIDTagName, Value: msg.ConnectionID})
	if err != nil {
		return fmt.Errorf("put chat message: %w", err)
	}

	m.bus.Publish(events.ChatMessageReceived, events.Exchange{
		ID:           msg.ID,
		ExchangeID:   msg.MessageID,
		ConnectionID: msg.ConnectionID,
	})

	return nil
}

// ByConnection returns the stored messages exchanged with one partner.
func (m *Manager) ByConnection(connectionID string) ([]*Message, error) {
	it, err := m.store.Query(connIDTagName + ":" + connectionID)
	if err != nil {
		return nil, fmt.Errorf("query chat store: %w", err)
	}

	defer func() {
		_ = it.Close()
	}()

	var msgs []*Message

	for {
		more, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate chat store: %w", err)
		}

		if !more {
			return msgs, nil
		}

		data, err := it.Value()
		if err != nil {
			return nil, fmt.Errorf("read chat message: %w", err)
		}

		msg := &Message{}
		if err := json.Unmarshal(data, msg); err != nil {
			return nil, fmt.Errorf("unmarshal chat message: %w", err)
		}

		msgs = append(msgs, msg)
	}
}
