/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package aries defines the webhook wire records delivered by the agent and
// the classification of those records into a closed set of event variants.
// Decoding happens once, at the ingress boundary; everything downstream works
// with typed records and state/role tags.
package aries

import (
	"encoding/json"
	"strings"
	"time"
)

// ExchangeVersion tags the wire-protocol version of an exchange.
type ExchangeVersion string

// Exchange versions.
const (
	V1 ExchangeVersion = "v1"
	V2 ExchangeVersion = "v2"
)

// Timestamp wraps time.Time to accept the agent's timestamp rendering
// ("2021-03-11 09:22:06.919791Z") as well as RFC 3339.
type Timestamp struct {
	time.Time
}

const agentTimeLayout = "2006-01-02 15:04:05.000000Z07:00"

// UnmarshalJSON parses either supported layout. An empty or null value
// leaves the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		parsed, err = time.Parse(agentTimeLayout, raw)
	}

	if err != nil {
		return err
	}

	t.Time = parsed

	return nil
}

// MarshalJSON renders RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Or returns the wrapped time, or fallback when the timestamp was absent.
func (t Timestamp) Or(fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}

	return t.Time
}

// ConnectionRecord is the connection-topic webhook record.
type ConnectionRecord struct {
	ConnectionID    string    `json:"connection_id"`
	State           string    `json:"state"`
	RFC23State      string    `json:"rfc23_state,omitempty"`
	TheirRole       string    `json:"their_role,omitempty"`
	TheirLabel      string    `json:"their_label,omitempty"`
	TheirDID        string    `json:"their_did,omitempty"`
	MyDID           string    `json:"my_did,omitempty"`
	Alias           string    `json:"alias,omitempty"`
	InvitationMsgID string    `json:"invitation_msg_id,omitempty"`
	InvitationKey   string    `json:"invitation_key,omitempty"`
	RequestID       string    `json:"request_id,omitempty"`
	ErrorMsg        string    `json:"error_msg,omitempty"`
	CreatedAt       Timestamp `json:"created_at,omitempty"`
	UpdatedAt       Timestamp `json:"updated_at,omitempty"`
}

// ConnectionDirection classifies who drove the connection exchange.
type ConnectionDirection int

// Connection directions, resolved once from the record's role flags.
const (
	// ConnectionInvitationResponse: the partner accepted an invitation this
	// agent issued; a local record keyed by the invitation already exists.
	ConnectionInvitationResponse ConnectionDirection = iota
	// ConnectionOutgoing: this agent initiated the exchange (accepted the
	// partner's invitation or requested via their public DID); a pending
	// local record was created at initiation time.
	ConnectionOutgoing
	// ConnectionIncoming: the partner initiated; first sight of the exchange.
	ConnectionIncoming
)

// Direction resolves the record's direction from the their_role flag.
func (r *ConnectionRecord) Direction() ConnectionDirection {
	switch r.TheirRole {
	case TheirRoleInvitee:
		return ConnectionInvitationResponse
	case TheirRoleInviter, TheirRoleResponder:
		return ConnectionOutgoing
	default:
		return ConnectionIncoming
	}
}

// CredentialAttribute is a single preview attribute of a credential proposal
// or offer.
type CredentialAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CredentialProposal is the preview document inside a v1 proposal dict.
type CredentialProposal struct {
	Type       string                `json:"@type,omitempty"`
	Attributes []CredentialAttribute `json:"attributes,omitempty"`
}

// CredentialProposalDict is the v1 proposal wrapper carrying schema and
// credential definition references.
type CredentialProposalDict struct {
	SchemaID           string              `json:"schema_id,omitempty"`
	CredDefID          string              `json:"cred_def_id,omitempty"`
	CredentialProposal *CredentialProposal `json:"credential_proposal,omitempty"`
}

// V1CredentialExchange is the issue_credential (v1) webhook record.
type V1CredentialExchange struct {
	CredentialExchangeID   string                  `json:"credential_exchange_id"`
	ConnectionID           string                  `json:"connection_id,omitempty"`
	ThreadID               string                  `json:"thread_id,omitempty"`
	State                  string                  `json:"state"`
	Role                   string                  `json:"role"`
	Initiator              string                  `json:"initiator,omitempty"`
	SchemaID               string                  `json:"schema_id,omitempty"`
	CredentialDefinitionID string                  `json:"credential_definition_id,omitempty"`
	CredentialProposalDict *CredentialProposalDict `json:"credential_proposal_dict,omitempty"`
	RevocRegID             string                  `json:"revoc_reg_id,omitempty"`
	RevocationID           string                  `json:"revocation_id,omitempty"`
	ErrorMsg               string                  `json:"error_msg,omitempty"`
	CreatedAt              Timestamp               `json:"created_at,omitempty"`
	UpdatedAt              Timestamp               `json:"updated_at,omitempty"`
}

// V20CredFormat carries the per-format payloads of a v2 exchange message.
type V20CredFormat struct {
	Indy    json.RawMessage `json:"indy,omitempty"`
	LDProof json.RawMessage `json:"ld_proof,omitempty"`
}

// V20CredExRecordByFormat groups the format views of a v2 exchange.
type V20CredExRecordByFormat struct {
	CredProposal *V20CredFormat `json:"cred_proposal,omitempty"`
	CredOffer    *V20CredFormat `json:"cred_offer,omitempty"`
	CredRequest  *V20CredFormat `json:"cred_request,omitempty"`
	CredIssue    *V20CredFormat `json:"cred_issue,omitempty"`
}

// V20CredExRecord is the issue_credential_v2_0 webhook record.
type V20CredExRecord struct {
	CredExID     string                   `json:"cred_ex_id"`
	ConnectionID string                   `json:"connection_id,omitempty"`
	ThreadID     string                   `json:"thread_id,omitempty"`
	State        string                   `json:"state"`
	Role         string                   `json:"role"`
	Initiator    string                   `json:"initiator,omitempty"`
	ByFormat     *V20CredExRecordByFormat `json:"by_format,omitempty"`
	ErrorMsg     string                   `json:"error_msg,omitempty"`
	CreatedAt    Timestamp                `json:"created_at,omitempty"`
	UpdatedAt    Timestamp                `json:"updated_at,omitempty"`
}

// LDProof reports whether the exchange carries a json-ld payload in any of
// its format views.
func (r *V20CredExRecord) LDProof() bool {
	if r.ByFormat == nil {
		return false
	}

	for _, f := range []*V20CredFormat{
		r.ByFormat.CredProposal, r.ByFormat.CredOffer, r.ByFormat.CredRequest, r.ByFormat.CredIssue,
	} {
		if f != nil && len(f.LDProof) > 0 {
			return true
		}
	}

	return false
}

// OfferPayload returns the offered document in the preferred format view,
// falling back from offer to proposal.
func (r *V20CredExRecord) OfferPayload() json.RawMessage {
	if r.ByFormat == nil {
		return nil
	}

	for _, f := range []*V20CredFormat{r.ByFormat.CredOffer, r.ByFormat.CredProposal} {
		if f == nil {
			continue
		}

		if len(f.LDProof) > 0 {
			return f.LDProof
		}

		if len(f.Indy) > 0 {
			return f.Indy
		}
	}

	return nil
}

// IssuedPayload returns the issued credential document, if present.
func (r *V20CredExRecord) IssuedPayload() json.RawMessage {
	if r.ByFormat == nil || r.ByFormat.CredIssue == nil {
		return nil
	}

	if len(r.ByFormat.CredIssue.LDProof) > 0 {
		return r.ByFormat.CredIssue.LDProof
	}

	return r.ByFormat.CredIssue.Indy
}

// V2IssueIndyCredentialEvent is the issue_credential_v2_0_indy webhook
// record: revocation registry bookkeeping the issuer needs to finish an indy
// issuance.
type V2IssueIndyCredentialEvent struct {
	CredExID     string `json:"cred_ex_id"`
	CredExIndyID string `json:"cred_ex_indy_id,omitempty"`
	RevRegID     string `json:"rev_reg_id,omitempty"`
	CredRevID    string `json:"cred_rev_id,omitempty"`
}

// V2IssueLDCredentialEvent is the issue_credential_v2_0_ld_proof webhook
// record: the stored credential reference for an ld-proof issuance.
type V2IssueLDCredentialEvent struct {
	CredExID        string `json:"cred_ex_id"`
	CredExLDProofID string `json:"cred_ex_ld_proof_id,omitempty"`
	CredIDStored    string `json:"cred_id_stored,omitempty"`
}

// PresentationExchangeRecord is the present_proof (v1) webhook record, and
// the canonical internal shape for indy v2 records after conversion.
type PresentationExchangeRecord struct {
	PresentationExchangeID string          `json:"presentation_exchange_id"`
	ConnectionID           string          `json:"connection_id,omitempty"`
	ThreadID               string          `json:"thread_id,omitempty"`
	State                  string          `json:"state"`
	Role                   string          `json:"role"`
	Initiator              string          `json:"initiator,omitempty"`
	Verified               string          `json:"verified,omitempty"`
	PresentationRequest    json.RawMessage `json:"presentation_request,omitempty"`
	Presentation           json.RawMessage `json:"presentation,omitempty"`
	ErrorMsg               string          `json:"error_msg,omitempty"`
	CreatedAt              Timestamp       `json:"created_at,omitempty"`
	UpdatedAt              Timestamp       `json:"updated_at,omitempty"`
}

// IsVerified reports the agent's verification outcome ("true"/"false" on the
// wire).
func (r *PresentationExchangeRecord) IsVerified() bool {
	return r.Verified == "true"
}

// V20PresFormat carries the per-format payloads of a v2 presentation
// message.
type V20PresFormat struct {
	Indy json.RawMessage `json:"indy,omitempty"`
	DIF  json.RawMessage `json:"dif,omitempty"`
}

// V20PresExRecordByFormat groups the format views of a v2 presentation
// exchange.
type V20PresExRecordByFormat struct {
	PresProposal *V20PresFormat `json:"pres_proposal,omitempty"`
	PresRequest  *V20PresFormat `json:"pres_request,omitempty"`
	Pres         *V20PresFormat `json:"pres,omitempty"`
}

// V20PresExRecord is the present_proof_v2_0 webhook record.
type V20PresExRecord struct {
	PresExID     string                   `json:"pres_ex_id"`
	ConnectionID string                   `json:"connection_id,omitempty"`
	ThreadID     string                   `json:"thread_id,omitempty"`
	State        string                   `json:"state"`
	Role         string                   `json:"role"`
	Initiator    string                   `json:"initiator,omitempty"`
	Verified     string                   `json:"verified,omitempty"`
	ByFormat     *V20PresExRecordByFormat `json:"by_format,omitempty"`
	ErrorMsg     string                   `json:"error_msg,omitempty"`
	CreatedAt    Timestamp                `json:"created_at,omitempty"`
	UpdatedAt    Timestamp                `json:"updated_at,omitempty"`
}

// PresentationFormat is the sub-format of a v2 presentation exchange.
type PresentationFormat int

// Presentation sub-formats.
const (
	FormatUnknown PresentationFormat = iota
	FormatIndy
	FormatDIF
)

// Format resolves the record's sub-format from its by_format views.
func (r *V20PresExRecord) Format() PresentationFormat {
	if r.ByFormat == nil {
		return FormatUnknown
	}

	for _, f := range []*V20PresFormat{r.ByFormat.Pres, r.ByFormat.PresRequest, r.ByFormat.PresProposal} {
		if f == nil {
			continue
		}

		if len(f.Indy) > 0 {
			return FormatIndy
		}

		if len(f.DIF) > 0 {
			return FormatDIF
		}
	}

	return FormatUnknown
}

// BasicMessage is the basicmessages webhook record.
type BasicMessage struct {
	ConnectionID string    `json:"connection_id"`
	MessageID    string    `json:"message_id,omitempty"`
	Content      string    `json:"content,omitempty"`
	State        string    `json:"state,omitempty"`
	SentTime     Timestamp `json:"sent_time,omitempty"`
}

// PingEvent is the ping webhook record.
type PingEvent struct {
	ConnectionID string `json:"connection_id"`
	ThreadID     string `json:"thread_id,omitempty"`
	State        string `json:"state,omitempty"`
	Comment      string `json:"comment,omitempty"`
	Responded    bool   `json:"responded,omitempty"`
}

// RevocationNotificationEvent is the revocation-notification webhook record.
// ThreadID encodes the revoked credential as
// "indy-thid::<rev_reg_id>::<cred_rev_id>".
type RevocationNotificationEvent struct {
	ThreadID string `json:"thread_id"`
	Comment  string `json:"comment,omitempty"`
}

// RevocationInfo returns the revocation registry id and credential revocation
// id encoded in the notification thread id. ok is false when the thread id
// does not follow the agreed encoding.
func (r *RevocationNotificationEvent) RevocationInfo() (revRegID, credRevID string, ok bool) {
	parts := strings.Split(r.ThreadID, "::")
	if len(parts) != 3 {
		return "", "", false
	}

	return parts[1], parts[2], true
}
