/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package aries

// Connection record states.
const (
	ConnectionStateInit       = "init"
	ConnectionStateInvitation = "invitation"
	ConnectionStateRequest    = "request"
	ConnectionStateResponse   = "response"
	ConnectionStateActive     = "active"
	ConnectionStateCompleted  = "completed"
	ConnectionStateError      = "error"
	ConnectionStateAbandoned  = "abandoned"
)

// their_role values on connection records.
const (
	TheirRoleInviter   = "inviter"
	TheirRoleInvitee   = "invitee"
	TheirRoleRequester = "requester"
	TheirRoleResponder = "responder"
)

// Credential exchange roles.
const (
	CredentialRoleHolder = "holder"
	CredentialRoleIssuer = "issuer"
)

// Credential exchange states, v1 wire rendering.
const (
	CredentialV1StateProposalSent       = "proposal_sent"
	CredentialV1StateProposalReceived   = "proposal_received"
	CredentialV1StateOfferSent          = "offer_sent"
	CredentialV1StateOfferReceived      = "offer_received"
	CredentialV1StateRequestSent        = "request_sent"
	CredentialV1StateRequestReceived    = "request_received"
	CredentialV1StateCredentialIssued   = "credential_issued"
	CredentialV1StateCredentialReceived = "credential_received"
	CredentialV1StateCredentialAcked    = "credential_acked"
	CredentialV1StateAbandoned          = "abandoned"
)

// Credential exchange states, v2 wire rendering.
const (
	CredentialV2StateProposalSent       = "proposal-sent"
	CredentialV2StateProposalReceived   = "proposal-received"
	CredentialV2StateOfferSent          = "offer-sent"
	CredentialV2StateOfferReceived      = "offer-received"
	CredentialV2StateRequestSent        = "request-sent"
	CredentialV2StateRequestReceived    = "request-received"
	CredentialV2StateCredentialIssued   = "credential-issued"
	CredentialV2StateCredentialReceived = "credential-received"
	CredentialV2StateDone               = "done"
	CredentialV2StateAbandoned          = "abandoned"
)

// Presentation exchange roles.
const (
	ProofRoleProver   = "prover"
	ProofRoleVerifier = "verifier"
)

// Presentation exchange states, v1 wire rendering (the canonical internal
// rendering; v2 indy records are converted before dispatch).
const (
	ProofStateProposalSent         = "proposal_sent"
	ProofStateProposalReceived     = "proposal_received"
	ProofStateRequestSent          = "request_sent"
	ProofStateRequestReceived      = "request_received"
	ProofStatePresentationSent     = "presentation_sent"
	ProofStatePresentationReceived = "presentation_received"
	ProofStateVerified             = "verified"
	ProofStatePresentationAcked    = "presentation_acked"
	ProofStateAbandoned            = "abandoned"
	ProofStateDone                 = "done"
)
