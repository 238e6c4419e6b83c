/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package aries

import (
	"encoding/json"
	"fmt"
)

// Webhook topics delivered by the agent.
const (
	TopicConnections            = "connections"
	TopicPing                   = "ping"
	TopicPresentProof           = "present_proof"
	TopicPresentProofV2         = "present_proof_v2_0"
	TopicIssueCredential        = "issue_credential"
	TopicIssueCredentialV2      = "issue_credential_v2_0"
	TopicIssueCredentialV2Indy  = "issue_credential_v2_0_indy"
	TopicIssueCredentialV2LD    = "issue_credential_v2_0_ld_proof"
	TopicBasicMessages          = "basicmessages"
	TopicRevocationNotification = "revocation-notification"
)

// Event is the tagged union produced by ParseEvent. Exactly one variant
// field is set for recognized topics; unrecognized topics set Raw only.
type Event struct {
	Topic string

	Connection   *ConnectionRecord
	Ping         *PingEvent
	ProofV1      *PresentationExchangeRecord
	ProofV2      *V20PresExRecord
	CredentialV1 *V1CredentialExchange
	CredentialV2 *V20CredExRecord
	IssueIndy    *V2IssueIndyCredentialEvent
	IssueLD      *V2IssueLDCredentialEvent
	BasicMessage *BasicMessage
	Revocation   *RevocationNotificationEvent

	Raw json.RawMessage
}

// ParseEvent decodes a webhook payload into its event variant. Unknown
// topics are not an error: they produce a raw event for diagnostic logging.
// A decode failure on a known topic is returned to the caller, which is
// expected to log and drop the event.
func ParseEvent(topic string, payload []byte) (*Event, error) {
	ev := &Event{Topic: topic}

	var target interface{}

	switch topic {
	case TopicConnections:
		ev.Connection = &ConnectionRecord{}
		target = ev.Connection
	case TopicPing:
		ev.Ping = &PingEvent{}
		target = ev.Ping
	case TopicPresentProof:
		ev.ProofV1 = &PresentationExchangeRecord{}
		target = ev.ProofV1
	case TopicPresentProofV2:
		ev.ProofV2 = &V20PresExRecord{}
		target = ev.ProofV2
	case TopicIssueCredential:
		ev.CredentialV1 = &V1CredentialExchange{}
		target = ev.CredentialV1
	case TopicIssueCredentialV2:
		ev.CredentialV2 = &V20CredExRecord{}
		target = ev.CredentialV2
	case TopicIssueCredentialV2Indy:
		ev.IssueIndy = &V2IssueIndyCredentialEvent{}
		target = ev.IssueIndy
	case TopicIssueCredentialV2LD:
		ev.IssueLD = &V2IssueLDCredentialEvent{}
		target = ev.IssueLD
	case TopicBasicMessages:
		ev.BasicMessage = &BasicMessage{}
		target = ev.BasicMessage
	case TopicRevocationNotification:
		ev.Revocation = &RevocationNotificationEvent{}
		target = ev.Revocation
	default:
		ev.Raw = append(json.RawMessage(nil), payload...)
		return ev, nil
	}

	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", topic, err)
	}

	return ev, nil
}
