/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package proofex takes care of presentation exchange record persistence.
// v1 and converted v2-indy records share this store with native v2 DIF
// records; that is why all proof dispatch runs under one guard.
package proofex

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

// Namespace is the store name of the presentation exchange repository.
const Namespace = "presentation_exchange"

const (
	exIDTagName   = "exchangeID"
	connIDTagName = "connectionID"
)

// Presentation exchange payload types.
const (
	TypeIndy = "indy"
	TypeDIF  = "dif"
)

// ErrNotFound is returned when no presentation exchange record matches the
// query.
var ErrNotFound = errors.New("presentation exchange record not found")

var logger = log.New("partner-agent/store/proofex")

type provider interface {
	StorageProvider() storage.Provider
}

// Record is the persisted presentation exchange entity.
type Record struct {
	ID           string                `json:"id"`
	ExchangeID   string                `json:"exchange_id"`
	ConnectionID string                `json:"connection_id,omitempty"`
	ThreadID     string                `json:"thread_id,omitempty"`
	Role         string                `json:"role"`
	Version      aries.ExchangeVersion `json:"version"`
	Type         string                `json:"type,omitempty"`
	Valid        bool                  `json:"valid,omitempty"`
	Payload      json.RawMessage       `json:"payload,omitempty"`
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

// PushState appends a reported state transition and clears the error message
// left by a previous failed transition.
func (r *Record) PushState(state string, ts time.Time) {
	if r.History == nil {
		r.History = &history.Log{}
	}

	r.History.Push(state, ts)
	r.ErrorMsg = ""
	r.UpdatedAt = ts
}

// Repository persists presentation exchange records.
type Repository struct {
	store storage.Store
}

// New returns a presentation exchange repository backed by the given storage
// provider.
func New(p provider) (*Repository, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("open presentation exchange store: %w", err)
	}

	err = p.StorageProvider().SetStoreConfig(Namespace,
		storage.StoreConfiguration{TagNames: []string{exIDTagName, connIDTagName}})
	if err != nil {
		return nil, fmt.Errorf("set presentation exchange store config: %w", err)
	}

	return &Repository{store: store}, nil
}

// Save writes the record, tagged for lookup by exchange id and connection
// id.
func (r *Repository) Save(rec *Record) error {
	if rec.ID == "" || rec.ExchangeID == "" {
		return errors.New("presentation exchange record needs id and exchange id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal presentation exchange record: %w", err)
	}

	tags := []storage.Tag{{Name: exIDTagName, Value: rec.ExchangeID}}
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
		return nil, fmt.Errorf("get presentation exchange record: %w", err)
	}

	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("unmarshal presentation exchange record: %w", err)
	}

	return rec, nil
}

// GetByExchangeID fetches the record tracking the given agent exchange id.
func (r *Repository) GetByExchangeID(exchangeID string) (*Record, error) {
	it, err := r.store.Query(exIDTagName + ":" + exchangeID)
	if err != nil {
		return nil, fmt.Errorf("query presentation exchange store: %w", err)
	}

	defer storage.Close(it, logger)

	more, err := it.Next()
	if err != nil {
		return nil, fmt.Errorf("iterate presentation exchange store: %w", err)
	}

	if !more {
		return nil, ErrNotFound
	}

	data, err := it.Value()
	if err != nil {
		return nil, fmt.Errorf("read presentation exchange record: %w", err)
	}

	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("unmarshal presentation exchange record: %w", err)
	}

	return rec, nil
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
