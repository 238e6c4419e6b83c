/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package webhook receives the agent's lifecycle events and routes each one
// to the protocol manager that owns it. The dispatcher is the failure
// boundary of event ingestion: classification and handler errors surface as
// log entries, never to the event source.
package webhook

import (
	"sync"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger-labs/partner-agent/pkg/aries"
)

var logger = log.New("partner-agent/webhook")

// ConnectionHandler is the connection manager surface the dispatcher needs.
type ConnectionHandler interface {
	HandleInvitation(*aries.ConnectionRecord) error
	HandleOutgoing(*aries.ConnectionRecord) error
	HandleIncoming(*aries.ConnectionRecord) error
}

// PingHandler is the optional ping manager surface.
type PingHandler interface {
	HandlePing(*aries.PingEvent) error
}

// HolderHandler is the credential holder manager surface.
type HolderHandler interface {
	HandleV1Acked(*aries.V1CredentialExchange) error
	HandleV1OfferReceived(*aries.V1CredentialExchange) error
	HandleV2OfferReceived(*aries.V20CredExRecord) error
	HandleV2CredentialReceived(*aries.V20CredExRecord) error
	HandleStateChangesOnly(exchangeID, state, errorMsg string, ts time.Time) error
	HandleRevocationNotification(*aries.RevocationNotificationEvent) error
}

// IssuerHandler is the credential issuer manager surface.
type IssuerHandler interface {
	HandleV1Proposal(*aries.V1CredentialExchange) error
	HandleV1Request(*aries.V1CredentialExchange) error
	HandleV1StateChange(*aries.V1CredentialExchange) error
	HandleV2Proposal(*aries.V20CredExRecord) error
	HandleV2Request(*aries.V20CredExRecord) error
	HandleV2StateChange(*aries.V20CredExRecord) error
	HandleIssueIndy(*aries.V2IssueIndyCredentialEvent) error
}

// ProofHandler is the proof manager surface.
type ProofHandler interface {
	HandleProof(*aries.PresentationExchangeRecord) error
	HandleProofDIF(*aries.V20PresExRecord) error
}

// LDHandler is the json-ld manager surface.
type LDHandler interface {
	HandleIssueLD(*aries.V2IssueLDCredentialEvent) error
}

// ChatHandler is the chat manager surface.
type ChatHandler interface {
	HandleMessage(*aries.BasicMessage) error
}

// Opt configures the dispatcher.
type Opt func(*Dispatcher)

// WithPingHandler enables ping handling. Without it ping events are silently
// ignored; an absent ping manager is not an error.
func WithPingHandler(p PingHandler) Opt {
	return func(d *Dispatcher) { d.ping = p }
}

// Dispatcher classifies inbound webhook events and forwards each one to
// exactly one manager method under that manager's guard. It holds no state
// of its own and never touches persistence.
//
// Guards give per-manager serialization: two events bound for the same
// family are processed one at a time in arrival order, while events for
// different families proceed concurrently. The proof guard spans v1 and v2
// proof events since they share one store.
type Dispatcher struct {
	connection ConnectionHandler
	ping       PingHandler
	holder     HolderHandler
	issuer     IssuerHandler
	proof      ProofHandler
	jsonld     LDHandler
	chat       ChatHandler

	connectionLock sync.Mutex
	holderLock     sync.Mutex
	issuerLock     sync.Mutex
	proofLock      sync.Mutex
	jsonldLock     sync.Mutex
}

// NewDispatcher returns the event dispatcher.
func NewDispatcher(connection ConnectionHandler, holder HolderHandler, issuer IssuerHandler,
	proof ProofHandler, jsonld LDHandler, chat ChatHandler, opts ...Opt) *Dispatcher {
	d := &Dispatcher{
		connection: connection,
		holder:     holder,
		issuer:     issuer,
		proof:      proof,
		jsonld:     jsonld,
		chat:       chat,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch decodes and routes one webhook delivery. It never returns an
// error: malformed payloads, unknown topics and handler failures are logged
// and the dispatcher stays ready for the next event.
func (d *Dispatcher) Dispatch(topic string, payload []byte) {
	ev, err := aries.ParseEvent(topic, payload)
	if err != nil {
		logger.Warnf("dropping undecodable %s event: %s", topic, err)
		return
	}

	d.DispatchEvent(ev)
}

// DispatchEvent routes an already decoded event.
func (d *Dispatcher) DispatchEvent(ev *aries.Event) {
	switch {
	case ev.Connection != nil:
		d.handleConnection(ev.Connection)
	case ev.Ping != nil:
		d.handlePing(ev.Ping)
	case ev.ProofV1 != nil:
		d.handleProofV1(ev.ProofV1)
	case ev.ProofV2 != nil:
		d.handleProofV2(ev.ProofV2)
	case ev.CredentialV1 != nil:
		d.handleCredentialV1(ev.CredentialV1)
	case ev.CredentialV2 != nil:
		d.handleCredentialV2(ev.CredentialV2)
	case ev.IssueIndy != nil:
		d.handleIssueIndy(ev.IssueIndy)
	case ev.IssueLD != nil:
		d.handleIssueLD(ev.IssueLD)
	case ev.BasicMessage != nil:
		d.handleBasicMessage(ev.BasicMessage)
	case ev.Revocation != nil:
		d.handleRevocation(ev.Revocation)
	default:
		logger.Debugf("unrecognized %s event: %s", ev.Topic, ev.Raw)
	}
}

func (d *Dispatcher) handleConnection(rec *aries.ConnectionRecord) {
	logger.Debugf("connection event: %s state %s", rec.ConnectionID, rec.State)

	// invitation-phase bookkeeping belongs to the manager that issued the
	// invitation, not to event replay
	if rec.State == aries.ConnectionStateInvitation {
		return
	}

	d.connectionLock.Lock()
	defer d.connectionLock.Unlock()

	var err error

	switch rec.Direction() {
	case aries.ConnectionInvitationResponse:
		err = d.connection.HandleInvitation(rec)
	case aries.ConnectionOutgoing:
		err = d.connection.HandleOutgoing(rec)
	case aries.ConnectionIncoming:
		err = d.connection.HandleIncoming(rec)
	}

	d.logErr(aries.TopicConnections, err)
}

func (d *Dispatcher) handlePing(ev *aries.PingEvent) {
	if d.ping == nil {
		return
	}

	d.logErr(aries.TopicPing, d.ping.HandlePing(ev))
}

func (d *Dispatcher) handleProofV1(rec *aries.PresentationExchangeRecord) {
	logger.Debugf("present proof event: %s state %s", rec.PresentationExchangeID, rec.State)

	d.proofLock.Lock()
	defer d.proofLock.Unlock()

	d.logErr(aries.TopicPresentProof, d.proof.HandleProof(rec))
}

func (d *Dispatcher) handleProofV2(rec *aries.V20PresExRecord) {
	logger.Debugf("present proof v2 event: %s state %s", rec.PresExID, rec.State)

	d.proofLock.Lock()
	defer d.proofLock.Unlock()

	switch rec.Format() {
	case aries.FormatIndy:
		d.logErr(aries.TopicPresentProofV2, d.proof.HandleProof(aries.V20PresExToV1(rec)))
	case aries.FormatDIF:
		d.logErr(aries.TopicPresentProofV2, d.proof.HandleProofDIF(rec))
	default:
		logger.Debugf("dropping proof v2 event %s with unknown format", rec.PresExID)
	}
}

func (d *Dispatcher) handleCredentialV1(rec *aries.V1CredentialExchange) {
	logger.Debugf("credential event: %s role %s state %s", rec.CredentialExchangeID, rec.Role, rec.State)

	switch rec.Role {
	case aries.CredentialRoleHolder:
		d.holderLock.Lock()
		defer d.holderLock.Unlock()

		switch rec.State {
		case aries.CredentialV1StateCredentialAcked:
			d.logErr(aries.TopicIssueCredential, d.holder.HandleV1Acked(rec))
		case aries.CredentialV1StateOfferReceived:
			d.logErr(aries.TopicIssueCredential, d.holder.HandleV1OfferReceived(rec))
		default:
			d.logErr(aries.TopicIssueCredential, d.holder.HandleStateChangesOnly(
				rec.CredentialExchangeID, rec.State, rec.ErrorMsg, rec.UpdatedAt.Or(time.Now().UTC())))
		}
	case aries.CredentialRoleIssuer:
		d.issuerLock.Lock()
		defer d.issuerLock.Unlock()

		switch rec.State {
		case aries.CredentialV1StateProposalReceived:
			d.logErr(aries.TopicIssueCredential, d.issuer.HandleV1Proposal(rec))
		case aries.CredentialV1StateRequestReceived:
			d.logErr(aries.TopicIssueCredential, d.issuer.HandleV1Request(rec))
		default:
			d.logErr(aries.TopicIssueCredential, d.issuer.HandleV1StateChange(rec))
		}
	}
}

func (d *Dispatcher) handleCredentialV2(rec *aries.V20CredExRecord) {
	logger.Debugf("credential v2 event: %s role %s state %s", rec.CredExID, rec.Role, rec.State)

	switch rec.Role {
	case aries.CredentialRoleIssuer:
		d.issuerLock.Lock()
		defer d.issuerLock.Unlock()

		switch rec.State {
		case aries.CredentialV2StateProposalReceived:
			d.logErr(aries.TopicIssueCredentialV2, d.issuer.HandleV2Proposal(rec))
		case aries.CredentialV2StateRequestReceived:
			d.logErr(aries.TopicIssueCredentialV2, d.issuer.HandleV2Request(rec))
		default:
			d.logErr(aries.TopicIssueCredentialV2, d.issuer.HandleV2StateChange(rec))
		}
	case aries.CredentialRoleHolder:
		d.holderLock.Lock()
		defer d.holderLock.Unlock()

		switch rec.State {
		case aries.CredentialV2StateOfferReceived:
			d.logErr(aries.TopicIssueCredentialV2, d.holder.HandleV2OfferReceived(rec))
		case aries.CredentialV2StateCredentialReceived:
			d.logErr(aries.TopicIssueCredentialV2, d.holder.HandleV2CredentialReceived(rec))
		default:
			d.logErr(aries.TopicIssueCredentialV2, d.holder.HandleStateChangesOnly(
				rec.CredExID, rec.State, rec.ErrorMsg, rec.UpdatedAt.Or(time.Now().UTC())))
		}
	}
}

func (d *Dispatcher) handleIssueIndy(ev *aries.V2IssueIndyCredentialEvent) {
	logger.Debugf("issue credential v2 indy event: %s", ev.CredExID)

	d.issuerLock.Lock()
	defer d.issuerLock.Unlock()

	d.logErr(aries.TopicIssueCredentialV2Indy, d.issuer.HandleIssueIndy(ev))
}

func (d *Dispatcher) handleIssueLD(ev *aries.V2IssueLDCredentialEvent) {
	logger.Debugf("issue credential v2 ld event: %s", ev.CredExID)

	d.jsonldLock.Lock()
	defer d.jsonldLock.Unlock()

	d.logErr(aries.TopicIssueCredentialV2LD, d.jsonld.HandleIssueLD(ev))
}

// basic message handling is a single path, the manager handles it directly.
func (d *Dispatcher) handleBasicMessage(ev *aries.BasicMessage) {
	d.logErr(aries.TopicBasicMessages, d.chat.HandleMessage(ev))
}

func (d *Dispatcher) handleRevocation(ev *aries.RevocationNotificationEvent) {
	d.holderLock.Lock()
	defer d.holderLock.Unlock()

	d.logErr(aries.TopicRevocationNotification, d.holder.HandleRevocationNotification(ev))
}

func (d *Dispatcher) logErr(topic string, err error) {
	if err != nil {
		logger.Errorf("handling %s event: %s", topic, err)
	}
}
