/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package credential

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/partner-agent/pkg/aries"
	"github.com/hyperledger-labs/partner-agent/pkg/events"
	"github.com/hyperledger-labs/partner-agent/pkg/store/credex"
)

func TestIssuerV1Lifecycle(t *testing.T) {
	p := newProvider(t)
	i := NewIssuer(p)

	var proposals, requests int

	p.bus.Subscribe(events.CredentialProposalReceived, func(string, interface{}) { proposals++ })
	p.bus.Subscribe(events.CredentialRequestReceived, func(string, interface{}) { requests++ })

	proposal := v1Offer("cred-1")
	proposal.Role = aries.CredentialRoleIssuer
	proposal.State = aries.CredentialV1StateProposalReceived

	require.NoError(t, i.HandleV1Proposal(proposal))
	require.Equal(t, 1, proposals)

	rec, err := p.repo.GetByExchangeID("cred-1")
	require.NoError(t, err)
	require.Equal(t, aries.CredentialRoleIssuer, rec.Role)
	require.Equal(t, "sch:1", rec.SchemaID)
	require.Equal(t, aries.CredentialV1StateProposalReceived, rec.State())

	require.NoError(t, i.HandleV1Request(&aries.V1CredentialExchange{
		CredentialExchangeID: "cred-1",
		State:                aries.CredentialV1StateRequestReceived,
	}))
	require.Equal(t, 1, requests)

	require.NoError(t, i.HandleV1StateChange(&aries.V1CredentialExchange{
		CredentialExchangeID: "cred-1",
		State:                aries.CredentialV1StateCredentialIssued,
	}))

	rec, err = p.repo.GetByExchangeID("cred-1")
	require.NoError(t, err)
	require.Equal(t, aries.CredentialV1StateCredentialIssued, rec.State())
	require.Equal(t, 3, rec.History.Len())

	// a request for an unseen exchange is a no-op, requests do not open one
	require.NoError(t, i.HandleV1Request(&aries.V1CredentialExchange{
		CredentialExchangeID: "cred-9",
		State:                aries.CredentialV1StateRequestReceived,
	}))
	_, err = p.repo.GetByExchangeID("cred-9")
	require.ErrorIs(t, err, credex.ErrNotFound)
}

func TestIssuerV2Proposal(t *testing.T) {
	p := newProvider(t)
	i := NewIssuer(p)

	err := i.HandleV2Proposal(&aries.V20CredExRecord{
		CredExID:     "cred-1",
		ConnectionID: "conn-1",
		Role:         aries.CredentialRoleIssuer,
		State:        aries.CredentialV2StateProposalReceived,
		ByFormat: &aries.V20CredExRecordByFormat{
			CredProposal: &aries.V20CredFormat{Indy: json.RawMessage(`{"schema_id": "sch:1"}`)},
		},
	})
	require.NoError(t, err)

	rec, err := p.repo.GetByExchangeID("cred-1")
	require.NoError(t, err)
	require.Equal(t, aries.V2, rec.Version)
	require.Equal(t, credex.TypeIndy, rec.Type)
	require.Equal(t, aries.CredentialV2StateProposalReceived, rec.State())

	// a proposal without any format payload is invalid
	err = i.HandleV2Proposal(&aries.V20CredExRecord{
		CredExID: "cred-2",
		State:    aries.CredentialV2StateProposalReceived,
	})
	require.Error(t, err)
}

func TestIssuerV2StateChangeWithError(t *testing.T) {
	p := newProvider(t)
	i := NewIssuer(p)

	var changed int

	p.bus.Subscribe(events.CredentialStateChanged, func(string, interface{}) { changed++ })

	require.NoError(t, i.HandleV2Proposal(&aries.V20CredExRecord{
		CredExID: "cred-1",
		State:    aries.CredentialV2StateProposalReceived,
		ByFormat: &aries.V20CredExRecordByFormat{
			CredProposal: &aries.V20CredFormat{Indy: json.RawMessage(`{}`)},
		},
	}))

	require.NoError(t, i.HandleV2StateChange(&aries.V20CredExRecord{
		CredExID: "cred-1",
		State:    aries.CredentialV2StateAbandoned,
		ErrorMsg: "holder declined",
	}))
	require.Equal(t, 1, changed)

	rec, err := p.repo.GetByExchangeID("cred-1")
	require.NoError(t, err)
	require.Equal(t, aries.CredentialV2StateAbandoned, rec.State())
	require.Equal(t, "holder declined", rec.ErrorMsg)
}

func TestIssuerHandleIssueIndy(t *testing.T) {
	p := newProvider(t)
	i := NewIssuer(p)

	require.NoError(t, i.HandleV2Proposal(&aries.V20CredExRecord{
		CredExID: "cred-1",
		State:    aries.CredentialV2StateProposalReceived,
		ByFormat: &aries.V20CredExRecordByFormat{
			CredProposal: &aries.V20CredFormat{Indy: json.RawMessage(`{}`)},
		},
	}))

	require.NoError(t, i.HandleIssueIndy(&aries.V2IssueIndyCredentialEvent{
		CredExID:  "cred-1",
		RevRegID:  "rr-1",
		CredRevID: "cr-1",
	}))

	rec, err := p.repo.GetByExchangeID("cred-1")
	require.NoError(t, err)
	require.Equal(t, "rr-1", rec.RevRegID)
	require.Equal(t, "cr-1", rec.CredRevID)
	require.Equal(t, 1, rec.History.Len())

	// events without revocation data are ignored
	require.NoError(t, i.HandleIssueIndy(&aries.V2IssueIndyCredentialEvent{CredExID: "cred-1"}))

	// unseen exchange, no-op
	require.NoError(t, i.HandleIssueIndy(&aries.V2IssueIndyCredentialEvent{
		CredExID: "cred-9",
		RevRegID: "rr-9",
	}))
}
