/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package credential implements the holder and issuer state machines for
// credential exchanges, v1 and v2, indy and json-ld.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/mitchellh/mapstructure"

	"github.com/hyperledger-labs/partner-agent/pkg/aries"
	"github.com/hyperledger-labs/partner-agent/pkg/events"
	"github.com/hyperledger-labs/partner-agent/pkg/store/credex"
	"github.com/hyperledger-labs/partner-agent/pkg/store/schema"
)

var logger = log.New("partner-agent/credential")

// Well-known json-ld markers stripped before schema resolution.
const (
	baseContext        = "https://www.w3.org/2018/credentials/v1"
	baseCredentialType = "VerifiableCredential"
)

// Provider contains the dependencies of the credential managers.
type Provider interface {
	CredentialStore() *credex.Repository
	SchemaService() *schema.Service
	EventBus() events.Bus
}

// HolderOpt configures the holder manager.
type HolderOpt func(*Holder)

// WithLabelStrategy replaces the default credential labeling strategy.
func WithLabelStrategy(s LabelStrategy) HolderOpt {
	return func(h *Holder) { h.labels = s }
}

// Holder owns holder-side credential exchange records. Callers serialize
// access through the dispatcher guard; the embedded schema service carries
// its own guard since it is shared beyond this manager.
type Holder struct {
	repo    *credex.Repository
	schemas *schema.Service
	bus     events.Bus
	labels  LabelStrategy
}

// NewHolder returns the holder manager.
func NewHolder(p Provider, opts ...HolderOpt) *Holder {
	h := &Holder{
		repo:    p.CredentialStore(),
		schemas: p.SchemaService(),
		bus:     p.EventBus(),
		labels:  defaultLabelStrategy{},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// HandleV1Acked finalizes a v1 exchange: the issuer acknowledged that the
// credential is in the holder's wallet.
func (h *Holder) HandleV1Acked(ev *aries.V1CredentialExchange) error {
	rec, err := h.find(ev.CredentialExchangeID)
	if err != nil || rec == nil {
		return err
	}

	sameState := rec.State() == ev.State

	rec.PushState(ev.State, ev.UpdatedAt.Or(time.Now().UTC()))
	if ev.RevocRegID != "" {
		rec.RevRegID = ev.RevocRegID
		rec.CredRevID = ev.RevocationID
	}

	if err := h.repo.Save(rec); err != nil {
		return fmt.Errorf("save acked exchange: %w", err)
	}

	if !sameState {
		h.emit(events.CredentialAdded, rec)
	}

	return nil
}

// HandleV1OfferReceived stores the offered indy payload and advances the
// exchange. The proposal dict is the required sub-document of a v1 offer.
func (h *Holder) HandleV1OfferReceived(ev *aries.V1CredentialExchange) error {
	if ev.CredentialProposalDict == nil || ev.CredentialProposalDict.CredentialProposal == nil {
		return errors.New("v1 offer without credential proposal dict")
	}

	payload, err := json.Marshal(ev.CredentialProposalDict.CredentialProposal)
	if err != nil {
		return fmt.Errorf("marshal offer payload: %w", err)
	}

	rec, err := h.findOrCreate(ev.CredentialExchangeID, ev.ConnectionID, aries.V1)
	if err != nil {
		return err
	}

	rec.Type = credex.TypeIndy
	rec.Payload = payload
	rec.SchemaID = ev.CredentialProposalDict.SchemaID
	rec.CredDefID = ev.CredentialProposalDict.CredDefID
	rec.ThreadID = ev.ThreadID

	return h.advance(rec, ev.State, ev.UpdatedAt.Or(time.Now().UTC()), events.CredentialOffered)
}

// HandleV2OfferReceived stores the offered v2 payload, indy or json-ld, and
// advances the exchange.
func (h *Holder) HandleV2OfferReceived(ev *aries.V20CredExRecord) error {
	payload := ev.OfferPayload()
	if payload == nil {
		return errors.New("v2 offer without format payload")
	}

	rec, err := h.findOrCreate(ev.CredExID, ev.ConnectionID, aries.V2)
	if err != nil {
		return err
	}

	rec.Type = credex.TypeIndy
	if ev.LDProof() {
		rec.Type = credex.TypeJSONLD
	}

	rec.Payload = payload
	rec.ThreadID = ev.ThreadID

	return h.advance(rec, ev.State, ev.UpdatedAt.Or(time.Now().UTC()), events.CredentialOffered)
}

// HandleV2CredentialReceived processes the issued credential. For json-ld
// exchanges this resolves the credential's schema, registering one on the
// fly when the identifier is unseen, and labels the record.
func (h *Holder) HandleV2CredentialReceived(ev *aries.V20CredExRecord) error {
	rec, err := h.find(ev.CredExID)
	if err != nil || rec == nil {
		return err
	}

	if ev.LDProof() {
		if err := h.resolveLDSchema(rec, ev); err != nil {
			return err
		}
	}

	return h.advance(rec, ev.State, ev.UpdatedAt.Or(time.Now().UTC()), events.CredentialAdded)
}

// HandleStateChangesOnly records a reported state with no business side
// effects beyond the history push and the error message.
func (h *Holder) HandleStateChangesOnly(exchangeID, state, errorMsg string, ts time.Time) error {
	rec, err := h.find(exchangeID)
	if err != nil || rec == nil {
		return err
	}

	sameState := rec.State() == state

	if errorMsg != "" {
		rec.PushError(state, errorMsg, ts)
	} else {
		rec.PushState(state, ts)
	}

	if err := h.repo.Save(rec); err != nil {
		return fmt.Errorf("save exchange state: %w", err)
	}

	if !sameState {
		h.emit(events.CredentialStateChanged, rec)
	}

	return nil
}

// HandleRevocationNotification marks the revoked credential. The registry
// and revocation ids are encoded in the notification's thread id; a record
// miss is a no-op since the credential may not be held locally.
func (h *Holder) HandleRevocationNotification(ev *aries.RevocationNotificationEvent) error {
	revRegID, credRevID, ok := ev.RevocationInfo()
	if !ok {
		return fmt.Errorf("unparseable revocation thread id %q", ev.ThreadID)
	}

	rec, err := h.repo.GetByRevocationInfo(revRegID, credRevID)
	if errors.Is(err, credex.ErrNotFound) {
		logger.Debugf("no credential for revocation %s::%s, ignoring", revRegID, credRevID)
		return nil
	}

	if err != nil {
		return err
	}

	if rec.Revoked {
		return nil
	}

	rec.Revoked = true

	if err := h.repo.Save(rec); err != nil {
		return fmt.Errorf("save revoked exchange: %w", err)
	}

	h.emit(events.CredentialRevoked, rec)

	return nil
}

// ldOffer is the shape of the ld_proof format view we care about.
type ldOffer struct {
	Credential struct {
		Context           []interface{}          `mapstructure:"@context"`
		Type              []string               `mapstructure:"type"`
		CredentialSubject map[string]interface{} `mapstructure:"credentialSubject"`
	} `mapstructure:"credential"`
}

// resolveLDSchema derives the schema identifier from the credential's
// context, registering a schema on the fly from the declared type and the
// credential subject's keys when none exists, then labels the record.
func (h *Holder) resolveLDSchema(rec *credex.Record, ev *aries.V20CredExRecord) error {
	payload := ev.IssuedPayload()
	if payload == nil {
		payload = ev.OfferPayload()
	}

	if payload == nil {
		return errors.New("ld credential without format payload")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return fmt.Errorf("decode ld payload: %w", err)
	}

	var offer ldOffer
	if err := mapstructure.Decode(raw, &offer); err != nil {
		return fmt.Errorf("map ld payload: %w", err)
	}

	schemaID := firstNonBaseContext(offer.Credential.Context)
	if schemaID == "" {
		return errors.New("ld credential without schema context")
	}

	documentType := firstNonBaseType(offer.Credential.Type)

	sch, err := h.schemas.FindOrRegister(schemaID, func() *schema.Record {
		return &schema.Record{
			Type:       documentType,
			Attributes: subjectAttributes(offer.Credential.CredentialSubject),
		}
	})
	if err != nil {
		return fmt.Errorf("resolve schema %s: %w", schemaID, err)
	}

	rec.Type = credex.TypeJSONLD
	rec.SchemaID = sch.ID
	rec.Label = h.labels.Label(sch, documentType)
	rec.Payload = payload

	return nil
}

func (h *Holder) advance(rec *credex.Record, state string, ts time.Time, topic string) error {
	sameState := rec.State() == state

	rec.PushState(state, ts)

	if err := h.repo.Save(rec); err != nil {
		return fmt.Errorf("save exchange: %w", err)
	}

	if !sameState {
		h.emit(topic, rec)
	}

	return nil
}

// find resolves an exchange record, treating a miss as a non-fatal no-op:
// the exchange may belong to a flow the agent is not tracking locally.
func (h *Holder) find(exchangeID string) (*credex.Record, error) {
	if exchangeID == "" {
		return nil, errors.New("credential event without exchange id")
	}

	rec, err := h.repo.GetByExchangeID(exchangeID)
	if errors.Is(err, credex.ErrNotFound) {
		logger.Debugf("no credential exchange %s, ignoring event", exchangeID)
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return rec, nil
}

func (h *Holder) findOrCreate(exchangeID, connectionID string, version aries.ExchangeVersion) (*credex.Record, error) {
	if exchangeID == "" {
		return nil, errors.New("credential event without exchange id")
	}

	rec, err := h.repo.GetByExchangeID(exchangeID)
	if errors.Is(err, credex.ErrNotFound) {
		return &credex.Record{
			ID:           uuid.New().String(),
			ExchangeID:   exchangeID,
			ConnectionID: connectionID,
			Role:         aries.CredentialRoleHolder,
			Version:      version,
			CreatedAt:    time.Now().UTC(),
		}, nil
	}

	if err != nil {
		return nil, err
	}

	return rec, nil
}

func (h *Holder) emit(topic string, rec *credex.Record) {
	h.bus.Publish(topic, events.Exchange{
		ID:           rec.ID,
		ExchangeID:   rec.ExchangeID,
		ConnectionID: rec.ConnectionID,
		State:        rec.State(),
	})
}

func firstNonBaseContext(contexts []interface{}) string {
	for _, c := range contexts {
		s, ok := c.(string)
		if !ok || s == baseContext {
			continue
		}

		return s
	}

	return ""
}

func firstNonBaseType(types []string) string {
	for _, t := range types {
		if t != baseCredentialType {
			return t
		}
	}

	return ""
}

func subjectAttributes(subject map[string]interface{}) []string {
	attrs := make([]string, 0, len(subject))

	for k := range subject {
		// the subject id is a reference, not a schema attribute
		if k == "id" {
			continue
		}

		attrs = append(attrs, k)
	}

	sort.Strings(attrs)

	return attrs
}
