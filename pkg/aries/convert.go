/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package aries

import "strings"

// v2 states use hyphens and "done" where v1 uses underscores and
// "presentation_acked".
func v2StateToV1(state string) string {
	if state == ProofStateDone {
		return ProofStatePresentationAcked
	}

	return strings.ReplaceAll(state, "-", "_")
}

// V20PresExToV1 converts an indy v2 presentation exchange record to the
// canonical v1 shape so the proof manager runs a single state machine.
// Callers check Format() first; conversion of a non-indy record is a
// programming error and yields a record with empty payloads.
func V20PresExToV1(v2 *V20PresExRecord) *PresentationExchangeRecord {
	v1 := &PresentationExchangeRecord{
		PresentationExchangeID: v2.PresExID,
		ConnectionID:           v2.ConnectionID,
		ThreadID:               v2.ThreadID,
		State:                  v2StateToV1(v2.State),
		Role:                   v2.Role,
		Initiator:              v2.Initiator,
		Verified:               v2.Verified,
		ErrorMsg:               v2.ErrorMsg,
		CreatedAt:              v2.CreatedAt,
		UpdatedAt:              v2.UpdatedAt,
	}

	if v2.ByFormat != nil {
		if v2.ByFormat.PresRequest != nil {
			v1.PresentationRequest = v2.ByFormat.PresRequest.Indy
		}

		if v2.ByFormat.Pres != nil {
			v1.Presentation = v2.ByFormat.Pres.Indy
		}
	}

	return v1
}
