/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package partner

import (
	"testing"
	"time"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	sp storage.Provider
}

func (m *mockProvider) StorageProvider() storage.Provider { return m.sp }

func newRepo(t *testing.T) *Repository {
	t.Helper()

	repo, err := New(&mockProvider{sp: mem.NewProvider()})
	require.NoError(t, err)

	return repo
}

func TestSaveAndLookup(t *testing.T) {
	repo := newRepo(t)
	now := time.Now().UTC()

	rec := &Record{
		ID:           "id-1",
		ConnectionID: "conn-1",
		Alias:        "a business partner",
		CreatedAt:    now,
	}
	rec.PushState("request", now)

	require.NoError(t, repo.Save(rec))

	byConn, err := repo.GetByConnectionID("conn-1")
	require.NoError(t, err)
	require.Equal(t, "id-1", byConn.ID)
	require.Equal(t, "a business partner", byConn.Alias)
	require.Equal(t, "request", byConn.State())

	byID, err := repo.Get("id-1")
	require.NoError(t, err)
	require.Equal(t, byConn.ConnectionID, byID.ConnectionID)
}

func TestLookupByInvitation(t *testing.T) {
	repo := newRepo(t)
	now := time.Now().UTC()

	rec := &Record{ID: "id-1", ConnectionID: "conn-1", InvitationMsgID: "inv-1"}
	rec.PushState("invitation", now)
	require.NoError(t, repo.Save(rec))

	found, err := repo.GetByInvitationMsgID("inv-1")
	require.NoError(t, err)
	require.Equal(t, "conn-1", found.ConnectionID)

	_, err = repo.GetByInvitationMsgID("inv-2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNotFound(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetByConnectionID("missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.CurrentState("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveValidation(t *testing.T) {
	repo := newRepo(t)

	require.Error(t, repo.Save(&Record{ID: "id-only"}))
	require.Error(t, repo.Save(&Record{ConnectionID: "conn-only"}))
}

func TestStateQueries(t *testing.T) {
	repo := newRepo(t)
	base := time.Date(2023, time.March, 1, 10, 0, 0, 0, time.UTC)

	rec := &Record{ID: "id-1", ConnectionID: "conn-1"}
	rec.PushState("init", base)
	rec.PushState("request", base.Add(time.Minute))
	rec.PushState("completed", base.Add(2*time.Minute))
	require.NoError(t, repo.Save(rec))

	state, err := repo.CurrentState("conn-1")
	require.NoError(t, err)
	require.Equal(t, "completed", state)

	entries, err := repo.HistoryAsOf("conn-1", base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "request", entries[1].State)
}

func TestPushStateClearsLastError(t *testing.T) {
	now := time.Now().UTC()

	rec := &Record{ID: "id-1", ConnectionID: "conn-1"}
	rec.PushState("request", now)
	rec.LastError = "request timed out"

	rec.PushState("completed", now.Add(time.Minute))
	require.Empty(t, rec.LastError)
	require.Equal(t, 2, rec.History.Len())
}

func TestSaveIsUpdateForSameID(t *testing.T) {
	repo := newRepo(t)
	now := time.Now().UTC()

	rec := &Record{ID: "id-1", ConnectionID: "conn-1"}
	rec.PushState("request", now)
	require.NoError(t, repo.Save(rec))

	rec.PushState("completed", now.Add(time.Minute))
	require.NoError(t, repo.Save(rec))

	stored, err := repo.GetByConnectionID("conn-1")
	require.NoError(t, err)
	require.Equal(t, 2, stored.History.Len())
	require.Equal(t, "completed", stored.State())
}
