/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package aries

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseEventClassification(t *testing.T) {
	tests := []struct {
		topic   string
		payload string
		check   func(t *testing.T, ev *Event)
	}{
		{
			topic:   TopicConnections,
			payload: `{"connection_id":"c1","state":"request","their_role":"inviter","their_label":"Acme"}`,
			check: func(t *testing.T, ev *Event) {
				t.Helper()
				require.NotNil(t, ev.Connection)
				require.Equal(t, "c1", ev.Connection.ConnectionID)
				require.Equal(t, ConnectionStateRequest, ev.Connection.State)
			},
		},
		{
			topic:   TopicPing,
			payload: `{"connection_id":"c1","thread_id":"t1","state":"received"}`,
			check: func(t *testing.T, ev *Event) {
				t.Helper()
				require.NotNil(t, ev.Ping)
				require.Equal(t, "t1", ev.Ping.ThreadID)
			},
		},
		{
			topic:   TopicPresentProof,
			payload: `{"presentation_exchange_id":"p1","state":"verified","role":"verifier","verified":"true"}`,
			check: func(t *testing.T, ev *Event) {
				t.Helper()
				require.NotNil(t, ev.ProofV1)
				require.True(t, ev.ProofV1.IsVerified())
			},
		},
		{
			topic:   TopicPresentProofV2,
			payload: `{"pres_ex_id":"p2","state":"done","role":"prover","by_format":{"pres":{"indy":{"a":1}}}}`,
			check: func(t *testing.T, ev *Event) {
				t.Helper()
				require.NotNil(t, ev.ProofV2)
				require.Equal(t, FormatIndy, ev.ProofV2.Format())
			},
		},
		{
			topic:   TopicIssueCredential,
			payload: `{"credential_exchange_id":"ce1","state":"offer_received","role":"holder"}`,
			check: func(t *testing.T, ev *Event) {
				t.Helper()
				require.NotNil(t, ev.CredentialV1)
				require.Equal(t, CredentialRoleHolder, ev.CredentialV1.Role)
			},
		},
		{
			topic:   TopicIssueCredentialV2,
			payload: `{"cred_ex_id":"ce2","state":"offer-received","role":"holder","by_format":{"cred_offer":{"ld_proof":{"credential":{}}}}}`,
			check: func(t *testing.T, ev *Event) {
				t.Helper()
				require.NotNil(t, ev.CredentialV2)
				require.True(t, ev.CredentialV2.LDProof())
			},
		},
		{
			topic:   TopicIssueCredentialV2Indy,
			payload: `{"cred_ex_id":"ce2","rev_reg_id":"rr1","cred_rev_id":"5"}`,
			check: func(t *testing.T, ev *Event) {
				t.Helper()
				require.NotNil(t, ev.IssueIndy)
				require.Equal(t, "rr1", ev.IssueIndy.RevRegID)
			},
		},
		{
			topic:   TopicIssueCredentialV2LD,
			payload: `{"cred_ex_id":"ce3","cred_id_stored":"cred-9"}`,
			check: func(t *testing.T, ev *Event) {
				t.Helper()
				require.NotNil(t, ev.IssueLD)
				require.Equal(t, "cred-9", ev.IssueLD.CredIDStored)
			},
		},
		{
			topic:   TopicBasicMessages,
			payload: `{"connection_id":"c1","message_id":"m1","content":"hi"}`,
			check: func(t *testing.T, ev *Event) {
				t.Helper()
				require.NotNil(t, ev.BasicMessage)
				require.Equal(t, "hi", ev.BasicMessage.Content)
			},
		},
		{
			topic:   TopicRevocationNotification,
			payload: `{"thread_id":"indy-thid::rr1::7"}`,
			check: func(t *testing.T, ev *Event) {
				t.Helper()
				require.NotNil(t, ev.Revocation)

				revReg, credRev, ok := ev.Revocation.RevocationInfo()
				require.True(t, ok)
				require.Equal(t, "rr1", revReg)
				require.Equal(t, "7", credRev)
			},
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.topic, func(t *testing.T) {
			ev, err := ParseEvent(tc.topic, []byte(tc.payload))
			require.NoError(t, err)
			require.Equal(t, tc.topic, ev.Topic)
			tc.check(t, ev)
		})
	}
}

func TestParseEventUnknownTopic(t *testing.T) {
	ev, err := ParseEvent("out_of_band", []byte(`{"foo":"bar"}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Raw)
	require.Nil(t, ev.Connection)
}

func TestParseEventMalformedPayload(t *testing.T) {
	_, err := ParseEvent(TopicConnections, []byte(`{"connection_id":`))
	require.Error(t, err)
}

func TestTimestampFormats(t *testing.T) {
	var rec ConnectionRecord

	require.NoError(t, json.Unmarshal([]byte(`{"connection_id":"c1","state":"active","updated_at":"2021-03-11 09:22:06.919791Z"}`), &rec))
	require.Equal(t, 2021, rec.UpdatedAt.Year())

	require.NoError(t, json.Unmarshal([]byte(`{"connection_id":"c1","state":"active","updated_at":"2021-03-11T09:22:06Z"}`), &rec))
	require.Equal(t, time.March, rec.UpdatedAt.Month())

	require.Error(t, json.Unmarshal([]byte(`{"connection_id":"c1","state":"active","updated_at":"yesterday"}`), &rec))
}

func TestConnectionDirection(t *testing.T) {
	require.Equal(t, ConnectionInvitationResponse, (&ConnectionRecord{TheirRole: TheirRoleInvitee}).Direction())
	require.Equal(t, ConnectionOutgoing, (&ConnectionRecord{TheirRole: TheirRoleInviter}).Direction())
	require.Equal(t, ConnectionOutgoing, (&ConnectionRecord{TheirRole: TheirRoleResponder}).Direction())
	require.Equal(t, ConnectionIncoming, (&ConnectionRecord{TheirRole: TheirRoleRequester}).Direction())
	require.Equal(t, ConnectionIncoming, (&ConnectionRecord{}).Direction())
}
