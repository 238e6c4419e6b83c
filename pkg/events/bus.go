/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package events provides the domain event stream emitted by the protocol
// managers after a successful state update. Business-rule evaluation and
// UI notification consumers subscribe here instead of polling the agent.
package events

import "sync"

// Topic names for the domain event stream.
const (
	PartnerAdded           = "partner.added"
	PartnerUpdated         = "partner.updated"
	PartnerRequestReceived = "partner.requestReceived"
	PartnerPingStatus      = "partner.pingStatus"

	CredentialAdded            = "credential.added"
	CredentialOffered          = "credential.offered"
	CredentialStateChanged     = "credential.stateChanged"
	CredentialRevoked          = "credential.revoked"
	CredentialProposalReceived = "credential.proposalReceived"
	CredentialRequestReceived  = "credential.requestReceived"

	ProofReceived     = "proof.received"
	ProofVerified     = "proof.verified"
	ProofStateChanged = "proof.stateChanged"

	ChatMessageReceived = "chat.messageReceived"
)

// Exchange is the payload for exchange-related domain events. It carries the
// updated record's local identifier, the agent's exchange identifier and the
// new state.
type Exchange struct {
	ID           string
	ExchangeID   string
	ConnectionID string
	State        string
}

// Handler processes a published event.
type Handler func(topic string, payload interface{})

// Bus is the publish interface handed to the protocol managers and the
// subscribe interface handed to downstream consumers.
type Bus interface {
	Subscribe(topic string, h Handler) (unsubscribe func())
	Publish(topic string, payload interface{})
}

type subscription struct {
	id      int64
	handler Handler
}

// bus is a thread-safe in-memory Bus. Handlers run synchronously on the
// publishing goroutine, i.e. under the publishing manager's guard.
type bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID int64
}

// NewBus returns an in-memory Bus.
func NewBus() Bus {
	return &bus{subs: make(map[string][]subscription)}
}

func (b *bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		kept := b.subs[topic][:0]

		for _, s := range b.subs[topic] {
			if s.id != id {
				kept = append(kept, s)
			}
		}

		b.subs[topic] = kept
	}
}

func (b *bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(topic, payload)
	}
}
