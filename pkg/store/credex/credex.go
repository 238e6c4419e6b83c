/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package credex takes care of credential exchange record persistence for
// both holder and issuer roles, across protocol versions v1 and v2.
package credex

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger-labs/partner-agent/pkg/aries"
	"github.com/hyperledger-labs/partner-agent/pkg/history"
)

// Namespace is the store name of the credential exchange repository.
const Namespace = "credential_exchange"

const (
	exIDTagName   = "exchangeID"
	roleTagName   = "role"
	connIDTagName = "connectionID"
)

// Credential payload types.
const (
	TypeIndy   = "indy"
	TypeJSONLD = "json_ld"
)

// ErrNotFound is returned when no credential exchange record matches the
// query.
var ErrNotFound = errors.New("credential exchange record not found")

var logger = log.New("partner-agent/store/credex")

type provider interface {
	StorageProvider() storage.Provider
}

// Record is the persisted credential exchange entity.
type Record struct {
	ID           string                `json:"id"`
	ExchangeID   string                `json:"exchange_id"`
	ConnectionID string                `json:"connection_id,omitempty"`
	ThreadID     string                `json:"thread_id,omitempty"`
	Role         string                `json:"role"`
	Version      aries.ExchangeVersion `json:"version"`
	Type         string                `json:"type,omitempty"`
	Label        string                `json:"label,omitempty"`
	SchemaID     string                `json:"schema_id,omitempty"`
	CredDefID    string                `json:"cred_def_id,omitempty"`
	Payload      json.RawMessage       `json:"payload,omitempty"`
	CredentialID string                `json:"credential_id,omitempty"`
	Revoked      bool                  `json:"revoked,omitempty"`
	RevRegID     string                `json:"rev_reg_id,omitempty"`
	CredRevID    string                `json:"cred_rev_id,omitempty"`
	History      *history.Log          `json:"state_history"`
	ErrorMsg     string                `json:"error_msg,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// State returns the record's current state: the last entry of its history.
func (r *Record) State() string {
	if r.History == nil {
		return ""
	}

	return r.History.CurrentState()
}

// PushState appends a reported state transition. A successful transition
// clears the error message of a previous failed one; the failed entry stays
// in the history.
func (r *Record) PushState(state string, ts time.Time) {
	if r.History == nil {
		r.History = &history.Log{}
	}

	r.History.Push(state, ts)
	r.ErrorMsg = ""
	r.UpdatedAt = ts
}

// PushError appends a failed transition and records its error message.
func (r *Record) PushError(state, errorMsg string, ts time.Time) {
	r.PushState(state, ts)
	r.ErrorMsg = errorMsg
}

// Repository persists credential exchange records.
type Repository struct {
	store storage.Store
}

// New returns a credential exchange repository backed by the given storage
// provider.
func New(p provider) (*Repository, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("open credential exchange store: %w", err)
	}

	err = p.StorageProvider().SetStoreConfig(Namespace,
		storage.StoreConfiguration{TagNames: []string{exIDTagName, roleTagName, connIDTagName}})
	if err != nil {
		return nil, fmt.Errorf("set credential exchange store config: %w", err)
	}

	return &Repository{store: store}, nil
}

// Save writes the record, tagged for lookup by exchange id, role and
// connection id.
func (r *Repository) Save(rec *Record) error {
	if rec.ID == "" || rec.ExchangeID == "" {
		return errors.New("credential exchange record needs id and exchange id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal credential exchange record: %w", err)
	}

	tags := []storage.Tag{
		{Name: exIDTagName, Value: rec.ExchangeID},
		{Name: roleTagName, Value: rec.Role},
	}
	if rec.ConnectionID != "" {
		tags = append(tags, storage.Tag{Name: connIDTagName, Value: rec.ConnectionID})
	}

	return r.store.Put(rec.ID, data, tags...)
}

// Get fetches a record by its local id.
func (r *Repository) Get(id string) (*Record, error) {
	data, err := r.store.Get(id)
	if errors.Is(err, storage.ErrDataNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get credential exchange record: %w", err)
	}

	return unmarshalRecord(data)
}

// GetByExchangeID fetches the record tracking the given agent exchange id.
func (r *Repository) GetByExchangeID(exchangeID string) (*Record, error) {
	return r.queryOne(exIDTagName + ":" + exchangeID)
}

// GetByRevocationInfo fetches the holder record matching a revocation
// registry id and credential revocation id pair.
func (r *Repository) GetByRevocationInfo(revRegID, credRevID string) (*Record, error) {
	it, err := r.store.Query(roleTagName + ":" + aries.CredentialRoleHolder)
	if err != nil {
		return nil, fmt.Errorf("query credential exchange store: %w", err)
	}

	defer storage.Close(it, logger)

	for {
		more, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate credential exchange store: %w", err)
		}

		if !more {
			return nil, ErrNotFound
		}

		data, err := it.Value()
		if err != nil {
			return nil, fmt.Errorf("read credential exchange record: %w", err)
		}

		rec, err := unmarshalRecord(data)
		if err != nil {
			return nil, err
		}

		if rec.RevRegID == revRegID && rec.CredRevID == credRevID {
			return rec, nil
		}
	}
}

// CurrentState returns the current state of the record tracking the given
// exchange id.
func (r *Repository) CurrentState(exchangeID string) (string, error) {
	rec, err := r.GetByExchangeID(exchangeID)
	if err != nil {
		return "", err
	}

	return rec.State(), nil
}

// HistoryAsOf returns the state transitions of the given exchange recorded
// up to t, in push order.
func (r *Repository) HistoryAsOf(exchangeID string, t time.Time) ([]history.Entry, error) {
	rec, err := r.GetByExchangeID(exchangeID)
	if err != nil {
		return nil, err
	}

	return rec.History.AsOf(t), nil
}

func (r *Repository) queryOne(expression string) (*Record, error) {
	it, err := r.store.Query(expression)
	if err != nil {
		return nil, fmt.Errorf("query credential exchange store: %w", err)
	}

	defer storage.Close(it, logger)

	more, err := it.Next()
	if err != nil {
		return nil, fmt.Errorf("iterate credential exchange store: %w", err)
	}

	if !more {
		return nil, ErrNotFound
	}

	data, err := it.Value()
	if err != nil {
		return nil, fmt.Errorf("read credential exchange record: %w", err)
	}

	return unmarshalRecord(data)
}

func unmarshalRecord(data []byte) (*Record, error) {
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("unmarshal credential exchange record: %w", err)
	}

	return rec, nil
}
