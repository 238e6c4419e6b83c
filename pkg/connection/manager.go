/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package connection implements the state machine for connection exchanges
// with business partners. The dispatcher splits inbound connection events by
// direction; each handler starts from a different known precondition.
package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger-labs/partner-agent/pkg/aries"
	"github.com/hyperledger-labs/partner-agent/pkg/events"
	"github.com/hyperledger-labs/partner-agent/pkg/store/partner"
)

var logger = log.New("partner-agent/connection")

// Provider contains the dependencies of the connection manager.
type Provider interface {
	PartnerStore() *partner.Repository
	EventBus() events.Bus
}

// Manager owns partner records and applies connection events to them.
// Callers serialize access through the dispatcher guard.
type Manager struct {
	repo *partner.Repository
	bus  events.Bus
}

// NewManager returns the connection manager.
func NewManager(p Provider) *Manager {
	return &Manager{repo: p.PartnerStore(), bus: p.EventBus()}
}

// AddInvitation records a partner for an invitation this agent issued. The
// record starts in the invitation state and is resolved again when the
// partner's response event arrives.
func (m *Manager) AddInvitation(invitationMsgID, alias string) (*partner.Record, error) {
	if invitationMsgID == "" {
		return nil, errors.New("invitation message id is required")
	}

	now := time.Now().UTC()
	rec := &partner.Record{
		ID: uuid.New().String(),
		// the agent reuses the invitation message id as connection id until
		// the exchange is underway
		ConnectionID:    invitationMsgID,
		InvitationMsgID: invitationMsgID,
		Alias:           alias,
		CreatedAt:       now,
	}
	rec.PushState(aries.ConnectionStateInvitation, now)

	if err := m.repo.Save(rec); err != nil {
		return nil, fmt.Errorf("save invitation partner: %w", err)
	}

	m.emit(events.PartnerAdded, rec)

	return rec, nil
}

// AddOutgoing records a partner for a connection this agent initiated, e.g.
// by accepting a received invitation. The record starts in the init state;
// subsequent connection events advance it.
func (m *Manager) AddOutgoing(connectionID, alias string) (*partner.Record, error) {
	if connectionID == "" {
		return nil, errors.New("connection id is required")
	}

	now := time.Now().UTC()
	rec := &partner.Record{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		Alias:        alias,
		CreatedAt:    now,
	}
	rec.PushState(aries.ConnectionStateInit, now)

	if err := m.repo.Save(rec); err != nil {
		return nil, fmt.Errorf("save outgoing partner: %w", err)
	}

	m.emit(events.PartnerAdded, rec)

	return rec, nil
}

// HandleInvitation applies an event reporting that a partner responded to an
// invitation this agent issued. The partner record is resolved by the
// invitation message id; a miss is a non-fatal no-op, the invitation may
// belong to a flow not tracked locally.
func (m *Manager) HandleInvitation(ev *aries.ConnectionRecord) error {
	if err := validate(ev); err != nil {
		return err
	}

	rec, err := m.repo.GetByInvitationMsgID(ev.InvitationMsgID)
	if errors.Is(err, partner.ErrNotFound) {
		logger.Debugf("no partner for invitation %s, ignoring event", ev.InvitationMsgID)
		return nil
	}

	if err != nil {
		return err
	}

	// the exchange now has a real connection id
	rec.ConnectionID = ev.ConnectionID

	return m.update(rec, ev)
}

// HandleOutgoing applies an event for a connection this agent initiated. The
// record was created at initiation time; a miss is a non-fatal no-op.
func (m *Manager) HandleOutgoing(ev *aries.ConnectionRecord) error {
	if err := validate(ev); err != nil {
		return err
	}

	rec, err := m.repo.GetByConnectionID(ev.ConnectionID)
	if errors.Is(err, partner.ErrNotFound) {
		logger.Debugf("no partner for outgoing connection %s, ignoring event", ev.ConnectionID)
		return nil
	}

	if err != nil {
		return err
	}

	return m.update(rec, ev)
}

// HandleIncoming applies an event for a connection the partner initiated.
// The first event for an unseen connection id creates the record; duplicate
// creation is folded into an update.
func (m *Manager) HandleIncoming(ev *aries.ConnectionRecord) error {
	if err := validate(ev); err != nil {
		return err
	}

	rec, err := m.repo.GetByConnectionID(ev.ConnectionID)
	if errors.Is(err, partner.ErrNotFound) {
		now := time.Now().UTC()
		rec = &partner.Record{
			ID:           uuid.New().String(),
			ConnectionID: ev.ConnectionID,
			Incoming:     true,
			CreatedAt:    now,
		}

		m.apply(rec, ev)

		if err := m.repo.Save(rec); err != nil {
			return fmt.Errorf("save incoming partner: %w", err)
		}

		m.emit(events.PartnerAdded, rec)

		if ev.State == aries.ConnectionStateRequest {
			m.emit(events.PartnerRequestReceived, rec)
		}

		return nil
	}

	if err != nil {
		return err
	}

	return m.update(rec, ev)
}

// update applies the reported state to an existing record. The push happens
// on every event; the domain event is suppressed when the reported state
// matches the current one, making redelivery a no-op at the business level.
func (m *Manager) update(rec *partner.Record, ev *aries.ConnectionRecord) error {
	sameState := rec.State() == ev.State

	m.apply(rec, ev)

	if err := m.repo.Save(rec); err != nil {
		return fmt.Errorf("save partner: %w", err)
	}

	if sameState {
		return nil
	}

	if ev.State == aries.ConnectionStateRequest {
		m.emit(events.PartnerRequestReceived, rec)
	}

	m.emit(events.PartnerUpdated, rec)

	return nil
}

func (m *Manager) apply(rec *partner.Record, ev *aries.ConnectionRecord) {
	if ev.TheirLabel != "" {
		rec.TheirLabel = ev.TheirLabel
	}

	if ev.TheirDID != "" {
		rec.TheirDID = ev.TheirDID
	}

	if ev.MyDID != "" {
		rec.MyDID = ev.MyDID
	}

	if ev.Alias != "" && rec.Alias == "" {
		rec.Alias = ev.Alias
	}

	rec.PushState(ev.State, ev.UpdatedAt.Or(time.Now().UTC()))

	if ev.State == aries.ConnectionStateError || ev.State == aries.ConnectionStateAbandoned {
		rec.LastError = ev.ErrorMsg
	}
}

func (m *Manager) emit(topic string, rec *partner.Record) {
	m.bus.Publish(topic, events.Exchange{
		ID:           rec.ID,
		ExchangeID:   rec.ConnectionID,
		ConnectionID: rec.ConnectionID,
		State:        rec.State(),
	})
}

func validate(ev *aries.ConnectionRecord) error {
	if ev.ConnectionID == "" {
		return errors.New("connection event without connection id")
	}

	if ev.State == "" {
		return errors.New("connection event without state")
	}

	return nil
}
