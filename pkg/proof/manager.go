/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package proof implements the presentation exchange state machine. One
// state machine serves v1 records, v2 indy records converted to the v1
// shape at the dispatch boundary, and native v2 DIF records; they all share
// one store, which is why all proof dispatch runs under a single guard.
package proof

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger-labs/partner-agent/pkg/aries"
	"github.com/hyperledger-labs/partner-agent/pkg/events"
	"github.com/hyperledger-labs/partner-agent/pkg/store/proofex"
)

var logger = log.New("partner-agent/proof")

// Provider contains the dependencies of the proof manager.
type Provider interface {
	ProofStore() *proofex.Repository
	EventBus() events.Bus
}

// Manager owns presentation exchange records.
type Manager struct {
	repo *proofex.Repository
	bus  events.Bus
}

// NewManager returns the proof manager.
func NewManager(p Provider) *Manager {
	return &Manager{repo: p.ProofStore(), bus: p.EventBus()}
}

// HandleProof applies a v1-shaped presentation exchange event: native v1
// records and converted v2 indy records both land here.
func (m *Manager) HandleProof(ev *aries.PresentationExchangeRecord) error {
	if ev.PresentationExchangeID == "" {
		return errors.New("proof event without exchange id")
	}

	if ev.State == "" {
		return errors.New("proof event without state")
	}

	return m.dispatch(&update{
		exchangeID:   ev.PresentationExchangeID,
		connectionID: ev.ConnectionID,
		threadID:     ev.ThreadID,
		role:         ev.Role,
		version:      aries.V1,
		typ:          proofex.TypeIndy,
		state:        ev.State,
		verified:     ev.IsVerified(),
		request:      ev.PresentationRequest,
		presentation: ev.Presentation,
		errorMsg:     ev.ErrorMsg,
		ts:           ev.UpdatedAt.Or(time.Now().UTC()),
	})
}

// HandleProofDIF applies a native v2 DIF presentation exchange event.
func (m *Manager) HandleProofDIF(ev *aries.V20PresExRecord) error {
	if ev.PresExID == "" {
		return errors.New("proof event without exchange id")
	}

	if ev.State == "" {
		return errors.New("proof event without state")
	}

	u := &update{
		exchangeID:   ev.PresExID,
		connectionID: ev.ConnectionID,
		threadID:     ev.ThreadID,
		role:         ev.Role,
		version:      aries.V2,
		typ:          proofex.TypeDIF,
		state:        ev.State,
		verified:     ev.Verified == "true",
		errorMsg:     ev.ErrorMsg,
		ts:           ev.UpdatedAt.Or(time.Now().UTC()),
	}

	if ev.ByFormat != nil {
		if ev.ByFormat.PresRequest != nil {
			u.request = ev.ByFormat.PresRequest.DIF
		}

		if ev.ByFormat.Pres != nil {
			u.presentation = ev.ByFormat.Pres.DIF
		}
	}

	return m.dispatch(u)
}

type update struct {
	exchangeID   string
	connectionID string
	threadID     string
	role         string
	version      aries.ExchangeVersion
	typ          string
	state        string
	verified     bool
	request      []byte
	presentation []byte
	errorMsg     string
	ts           time.Time
}

// canonical folds the v2 state rendering onto the v1 one so the state switch
// below covers both.
func (u *update) canonical() string {
	s := strings.ReplaceAll(u.state, "-", "_")
	if s == aries.ProofStateDone {
		return aries.ProofStatePresentationAcked
	}

	return s
}

func (m *Manager) dispatch(u *update) error {
	rec, created, err := m.findOrCreate(u)
	if err != nil || rec == nil {
		return err
	}

	sameState := !created && rec.State() == u.state

	switch u.canonical() {
	case aries.ProofStateRequestReceived, aries.ProofStateProposalReceived, aries.ProofStateRequestSent,
		aries.ProofStateProposalSent:
		if len(u.request) > 0 {
			rec.Payload = u.request
		}
	case aries.ProofStatePresentationReceived, aries.ProofStatePresentationSent:
		if len(u.presentation) > 0 {
			rec.Payload = u.presentation
		}
	case aries.ProofStateVerified:
		rec.Valid = u.verified
	}

	rec.PushState(u.state, u.ts)

	if u.errorMsg != "" {
		rec.ErrorMsg = u.errorMsg
	}

	if err := m.repo.Save(rec); err != nil {
		return fmt.Errorf("save presentation exchange: %w", err)
	}

	if sameState {
		return nil
	}

	switch u.canonical() {
	case aries.ProofStatePresentationReceived:
		m.emit(events.ProofReceived, rec)
	case aries.ProofStateVerified:
		m.emit(events.ProofVerified, rec)
	default:
		m.emit(events.ProofStateChanged, rec)
	}

	return nil
}

// findOrCreate resolves the exchange record. Received proposals and
// requests may open a previously unseen exchange; for every other state a
// miss is a non-fatal no-op.
func (m *Manager) findOrCreate(u *update) (*proofex.Record, bool, error) {
	rec, err := m.repo.GetByExchangeID(u.exchangeID)
	if err == nil {
		return rec, false, nil
	}

	if !errors.Is(err, proofex.ErrNotFound) {
		return nil, false, err
	}

	switch u.canonical() {
	case aries.ProofStateRequestReceived, aries.ProofStateProposalReceived:
		return &proofex.Record{
			ID:           uuid.New().String(),
			ExchangeID:   u.exchangeID,
			ConnectionID: u.connectionID,
			ThreadID:     u.threadID,
			Role:         u.role,
			Version:      u.version,
			Type:         u.typ,
			CreatedAt:    time.Now().UTC(),
		}, true, nil
	default:
		logger.Debugf("no presentation exchange %s, ignoring %s event", u.exchangeID, u.state)
		return nil, false, nil
	}
}

func (m *Manager) emit(topic string, rec *proofex.Record) {
	m.bus.Publish(topic, events.Exchange{
		ID:           rec.ID,
		ExchangeID:   rec.ExchangeID,
		ConnectionID: rec.ConnectionID,
		State:        rec.State(),
	})
}
