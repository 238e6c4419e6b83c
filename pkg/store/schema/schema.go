/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// Package schema takes care of credential schema records and their
// on-the-fly registration. Registration is a read-modify-write against a
// store shared by several managers, so the service carries its own guard,
// independent of the per-family dispatch guards.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bluele/gcache"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

// Namespace is the store name of the schema repository.
const Namespace = "credential_schema"

const cacheSize = 128

// ErrNotFound is returned when no schema record exists for an identifier.
var ErrNotFound = errors.New("schema record not found")

type provider interface {
	StorageProvider() storage.Provider
}

// Record is a persisted credential schema.
type Record struct {
	// ID is the schema identifier: an indy schema id or, for json-ld
	// credentials, the first non-base context entry of the offer.
	ID         string   `json:"id"`
	Label      string   `json:"label,omitempty"`
	Type       string   `json:"type,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	// Generated marks schemas registered on the fly from an incoming offer
	// rather than configured up front.
	Generated bool `json:"generated,omitempty"`
}

// Service provides guarded, cached access to schema records.
type Service struct {
	mu    sync.Mutex
	store storage.Store
	cache gcache.Cache
}

// NewService returns a schema service backed by the given storage provider.
func NewService(p provider) (*Service, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("open schema store: %w", err)
	}

	return &Service{
		store: store,
		cache: gcache.New(cacheSize).LRU().Build(),
	}, nil
}

// Get fetches a schema record by identifier.
func (s *Service) Get(id string) (*Record, error) {
	if cached, err := s.cache.Get(id); err == nil {
		return cached.(*Record), nil
	}

	data, err := s.store.Get(id)
	if errors.Is(err, storage.ErrDataNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get schema record: %w", err)
	}

	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("unmarshal schema record: %w", err)
	}

	_ = s.cache.Set(id, rec)

	return rec, nil
}

// Register stores a schema record and refreshes the cache.
func (s *Service) Register(rec *Record) error {
	if rec.ID == "" {
		return errors.New("schema record needs an id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal schema record: %w", err)
	}

	if err := s.store.Put(rec.ID, data); err != nil {
		return fmt.Errorf("put schema record: %w", err)
	}

	_ = s.cache.Set(rec.ID, rec)

	return nil
}

// FindOrRegister returns the schema record for id, registering the candidate
// if none exists yet. The whole lookup-then-register sequence runs under the
// service guard, so two concurrent callers racing on the same unseen id
// produce exactly one stored record.
func (s *Service) FindOrRegister(id string, candidate func() *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(id)
	if err == nil {
		return rec, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rec = candidate()
	rec.ID = id
	rec.Generated = true

	if err := s.Register(rec); err != nil {
		return nil, err
	}

	return rec, nil
}
