/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package jsonld handles the ld-proof issuance events of v2 credential
// exchanges: the stored-credential reference the issuer needs to complete a
// json-ld issuance.
package jsonld

import (
	"errors"
	"fmt"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger-labs/partner-agent/pkg/aries"
	"github.com/hyperledger-labs/partner-agent/pkg/store/credex"
)

var logger = log.New("partner-agent/jsonld")

// Provider contains the dependencies of the json-ld manager.
type Provider interface {
	CredentialStore() *credex.Repository
}

// Manager attaches ld issuance data to issuer-side exchange records.
// Callers serialize access through the dispatcher guard.
type Manager struct {
	repo *credex.Repository
}

// NewManager returns the json-ld manager.
func NewManager(p Provider) *Manager {
	return &Manager{repo: p.CredentialStore()}
}

// HandleIssueLD stores the wallet reference of an issued json-ld credential
// on its exchange record. The event carries issuance data, not a state
// transition; a record miss is a non-fatal no-op.
func (m *Manager) HandleIssueLD(ev *aries.V2IssueLDCredentialEvent) error {
	if ev.CredExID == "" {
		return errors.New("ld issue event without exchange id")
	}

	rec, err := m.repo.GetByExchangeID(ev.CredExID)
	if errors.Is(err, credex.ErrNotFound) {
		logger.Debugf("no credential exchange %s, ignoring ld issue event", ev.CredExID)
		return nil
	}

	if err != nil {
		return err
	}

	rec.CredentialID = ev.CredIDStored
	rec.Type = credex.TypeJSONLD

	if err := m.repo.Save(rec); err != nil {
		return fmt.Errorf("save ld issue info: %w", err)
	}

	return nil
}
