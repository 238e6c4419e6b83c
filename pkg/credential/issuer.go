/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperledger-labs/partner-agent/pkg/aries"
	"github.com/hyperledger-labs/partner-agent/pkg/events"
	"github.com/hyperledger-labs/partner-agent/pkg/store/credex"
)

// Issuer owns issuer-side credential exchange records: the mirror image of
// the holder state machine, driving the opposite direction of the protocol.
// Callers serialize access through the dispatcher guard.
type Issuer struct {
	repo *credex.Repository
	bus  events.Bus
}

// NewIssuer returns the issuer manager.
func NewIssuer(p Provider) *Issuer {
	return &Issuer{repo: p.CredentialStore(), bus: p.EventBus()}
}

// HandleV1Proposal intakes a holder's v1 credential proposal. First sight of
// the exchange id creates the record.
func (i *Issuer) HandleV1Proposal(ev *aries.V1CredentialExchange) error {
	if ev.CredentialProposalDict == nil || ev.CredentialProposalDict.CredentialProposal == nil {
		return errors.New("v1 proposal without credential proposal dict")
	}

	payload, err := json.Marshal(ev.CredentialProposalDict.CredentialProposal)
	if err != nil {
		return fmt.Errorf("marshal proposal payload: %w", err)
	}

	rec, err := i.findOrCreate(ev.CredentialExchangeID, ev.ConnectionID, aries.V1)
	if err != nil {
		return err
	}

	rec.Type = credex.TypeIndy
	rec.Payload = payload
	rec.SchemaID = ev.CredentialProposalDict.SchemaID
	rec.CredDefID = ev.CredentialProposalDict.CredDefID
	rec.ThreadID = ev.ThreadID

	return i.advance(rec, ev.State, ev.UpdatedAt.Or(time.Now().UTC()), events.CredentialProposalReceived)
}

// HandleV1Request intakes a holder's v1 credential request.
func (i *Issuer) HandleV1Request(ev *aries.V1CredentialExchange) error {
	return i.request(ev.CredentialExchangeID, ev.State, ev.UpdatedAt.Or(time.Now().UTC()))
}

// HandleV1StateChange records any other v1 issuer-side transition: a history
// push with no further side effects.
func (i *Issuer) HandleV1StateChange(ev *aries.V1CredentialExchange) error {
	return i.stateChange(ev.CredentialExchangeID, ev.State, ev.ErrorMsg, ev.UpdatedAt.Or(time.Now().UTC()))
}

// HandleV2Proposal intakes a holder's v2 credential proposal.
func (i *Issuer) HandleV2Proposal(ev *aries.V20CredExRecord) error {
	payload := ev.OfferPayload()
	if payload == nil {
		return errors.New("v2 proposal without format payload")
	}

	rec, err := i.findOrCreate(ev.CredExID, ev.ConnectionID, aries.V2)
	if err != nil {
		return err
	}

	rec.Type = credex.TypeIndy
	if ev.LDProof() {
		rec.Type = credex.TypeJSONLD
	}

	rec.Payload = payload
	rec.ThreadID = ev.ThreadID

	return i.advance(rec, ev.State, ev.UpdatedAt.Or(time.Now().UTC()), events.CredentialProposalReceived)
}

// HandleV2Request intakes a holder's v2 credential request.
func (i *Issuer) HandleV2Request(ev *aries.V20CredExRecord) error {
	return i.request(ev.CredExID, ev.State, ev.UpdatedAt.Or(time.Now().UTC()))
}

// HandleV2StateChange records any other v2 issuer-side transition.
func (i *Issuer) HandleV2StateChange(ev *aries.V20CredExRecord) error {
	return i.stateChange(ev.CredExID, ev.State, ev.ErrorMsg, ev.UpdatedAt.Or(time.Now().UTC()))
}

// HandleIssueIndy stores the revocation registry bookkeeping delivered with
// an indy v2 issuance. The event carries data the issuer needs to complete
// issuance, not a state transition, so nothing is pushed to the history.
func (i *Issuer) HandleIssueIndy(ev *aries.V2IssueIndyCredentialEvent) error {
	rec, err := i.find(ev.CredExID)
	if err != nil || rec == nil {
		return err
	}

	if ev.RevRegID == "" {
		logger.Debugf("indy issue event for %s without revocation info", ev.CredExID)
		return nil
	}

	rec.RevRegID = ev.RevRegID
	rec.CredRevID = ev.CredRevID

	if err := i.repo.Save(rec); err != nil {
		return fmt.Errorf("save revocation info: %w", err)
	}

	return nil
}

func (i *Issuer) request(exchangeID, state string, ts time.Time) error {
	rec, err := i.find(exchangeID)
	if err != nil || rec == nil {
		return err
	}

	return i.advance(rec, state, ts, events.CredentialRequestReceived)
}

func (i *Issuer) stateChange(exchangeID, state, errorMsg string, ts time.Time) error {
	rec, err := i.find(exchangeID)
	if err != nil || rec == nil {
		return err
	}

	sameState := rec.State() == state

	if errorMsg != "" {
		rec.PushError(state, errorMsg, ts)
	} else {
		rec.PushState(state, ts)
	}

	if err := i.repo.Save(rec); err != nil {
		return fmt.Errorf("save exchange state: %w", err)
	}

	if !sameState {
		i.emit(events.CredentialStateChanged, rec)
	}

	return nil
}

func (i *Issuer) advance(rec *credex.Record, state string, ts time.Time, topic string) error {
	sameState := rec.State() == state

	rec.PushState(state, ts)

	if err := i.repo.Save(rec); err != nil {
		return fmt.Errorf("save exchange: %w", err)
	}

	if !sameState {
		i.emit(topic, rec)
	}

	return nil
}

func (i *Issuer) find(exchangeID string) (*credex.Record, error) {
	if exchangeID == "" {
		return nil, errors.New("credential event without exchange id")
	}

	rec, err := i.repo.GetByExchangeID(exchangeID)
	if errors.Is(err, credex.ErrNotFound) {
		logger.Debugf("no credential exchange %s, ignoring event", exchangeID)
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return rec, nil
}

func (i *Issuer) findOrCreate(exchangeID, connectionID string, version aries.ExchangeVersion) (*credex.Record, error) {
	if exchangeID == "" {
		return nil, errors.New("credential event without exchange id")
	}

	rec, err := i.repo.GetByExchangeID(exchangeID)
	if errors.Is(err, credex.ErrNotFound) {
		return &credex.Record{
			ID:           uuid.New().String(),
			ExchangeID:   exchangeID,
			ConnectionID: connectionID,
			Role:         aries.CredentialRoleIssuer,
			Version:      version,
			CreatedAt:    time.Now().UTC(),
		}, nil
	}

	if err != nil {
		return nil, err
	}

	return rec, nil
}

func (i *Issuer) emit(topic string, rec *credex.Record) {
	i.bus.Publish(topic, events.Exchange{
		ID:           rec.ID,
		ExchangeID:   rec.ExchangeID,
		ConnectionID: rec.ConnectionID,
		State:        rec.State(),
	})
}
