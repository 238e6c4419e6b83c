/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package partner takes care of partner (connection) record persistence.
// A partner record tracks one connection exchange with another agent,
// including the ordered history of its reported states.
package partner

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger-labs/partner-agent/pkg/history"
)

// Namespace is the store name of the partner repository.
const Namespace = "partner"

const (
	connIDTagName = "connectionID"
	invIDTagName  = "invitationMsgID"
)

// ErrNotFound is returned when no partner record matches the query.
var ErrNotFound = errors.New("partner record not found")

var logger = log.New("partner-agent/store/partner")

type provider interface {
	StorageProvider() storage.Provider
}

// Record is the persisted partner entity. State is a projection of the
// history log, never stored independently.
type Record struct {
	ID              string       `json:"id"`
	ConnectionID    string       `json:"connection_id"`
	InvitationMsgID string       `json:"invitation_msg_id,omitempty"`
	Alias           string       `json:"alias,omitempty"`
	TheirLabel      string       `json:"their_label,omitempty"`
	TheirDID        string       `json:"their_did,omitempty"`
	MyDID           string       `json:"my_did,omitempty"`
	Incoming        bool         `json:"incoming,omitempty"`
	TrustPing       bool         `json:"trust_ping,omitempty"`
	Reachable       bool         `json:"reachable,omitempty"`
	History         *history.Log `json:"state_history"`
	LastError       string       `json:"last_error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
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
	r.LastError = ""
	r.UpdatedAt = ts
}

// Repository persists partner records.
type Repository struct {
	store storage.Store
}

// New returns a partner repository backed by the given storage provider.
func New(p provider) (*Repository, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("open partner store: %w", err)
	}

	err = p.StorageProvider().SetStoreConfig(Namespace,
		storage.StoreConfiguration{TagNames: []string{connIDTagName, invIDTagName}})
	if err != nil {
		return nil, fmt.Errorf("set partner store config: %w", err)
	}

	return &Repository{store: store}, nil
}

// Save writes the record, tagged for lookup by connection and invitation id.
func (r *Repository) Save(rec *Record) error {
	if rec.ID == "" || rec.ConnectionID == "" {
		return errors.New("partner record needs id and connection id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal partner record: %w", err)
	}

	tags := []storage.Tag{{Name: connIDTagName, Value: rec.ConnectionID}}
	if rec.InvitationMsgID != "" {
		tags = append(tags, storage.Tag{Name: invIDTagName, Value: rec.InvitationMsgID})
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
		return nil, fmt.Errorf("get partner record: %w", err)
	}

	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("unmarshal partner record: %w", err)
	}

	return rec, nil
}

// GetByConnectionID fetches the record tracking the given connection
// exchange.
func (r *Repository) GetByConnectionID(connectionID string) (*Record, error) {
	return r.queryOne(connIDTagName + ":" + connectionID)
}

// GetByInvitationMsgID fetches the record created when the invitation with
// the given message id was issued.
func (r *Repository) GetByInvitationMsgID(invitationMsgID string) (*Record, error) {
	return r.queryOne(invIDTagName + ":" + invitationMsgID)
}

// CurrentState returns the current state of the record tracking the given
// connection exchange.
func (r *Repository) CurrentState(connectionID string) (string, error) {
	rec, err := r.GetByConnectionID(connectionID)
	if err != nil {
		return "", err
	}

	return rec.State(), nil
}

// HistoryAsOf returns the state transitions of the given connection exchange
// recorded up to t, in push order.
func (r *Repository) HistoryAsOf(connectionID string, t time.Time) ([]history.Entry, error) {
	rec, err := r.GetByConnectionID(connectionID)
	if err != nil {
		return nil, err
	}

	return rec.History.AsOf(t), nil
}

func (r *Repository) queryOne(expression string) (*Record, error) {
	it, err := r.store.Query(expression)
	if err != nil {
		return nil, fmt.Errorf("query partner store: %w", err)
	}

	defer storage.Close(it, logger)

	more, err := it.Next()
	if err != nil {
		return nil, fmt.Errorf("iterate partner store: %w", err)
	}

	if !more {
		return nil, ErrNotFound
	}

	data, err := it.Value()
	if err != nil {
		return nil, fmt.Errorf("read partner record: %w", err)
	}

	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("unmarshal partner record: %w", err)
	}

	return rec, nil
}
