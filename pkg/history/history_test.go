/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushAppendOnly(t *testing.T) {
	base := time.Date(2023, time.March, 1, 10, 0, 0, 0, time.UTC)

	l := New("request", base)

	states := []string{"response", "response", "completed"}
	for i, s := range states {
		l.Push(s, base.Add(time.Duration(i+1)*time.Minute))
	}

	require.Equal(t, len(states)+1, l.Len())
	require.Equal(t, "completed", l.CurrentState())

	entries := l.Entries()
	require.Equal(t, "request", entries[0].State)
	require.Equal(t, "response", entries[1].State)
	require.Equal(t, "response", entries[2].State)
}

func TestCurrentIsLastPushed(t *testing.T) {
	base := time.Date(2023, time.March, 1, 10, 0, 0, 0, time.UTC)

	l := New("offer_received", base)
	// reported time earlier than the tail is still appended and still wins
	l.Push("request_sent", base.Add(-time.Hour))

	cur, ok := l.Current()
	require.True(t, ok)
	require.Equal(t, "request_sent", cur.State)
	require.Equal(t, 2, l.Len())
}

func TestCurrentEmpty(t *testing.T) {
	var l Log

	_, ok := l.Current()
	require.False(t, ok)
	require.Empty(t, l.CurrentState())
}

func TestAsOfReturnsPrefix(t *testing.T) {
	base := time.Date(2023, time.March, 1, 10, 0, 0, 0, time.UTC)

	l := New("request", base)
	l.Push("response", base.Add(time.Minute))
	l.Push("completed", base.Add(2*time.Minute))

	got := l.AsOf(base.Add(time.Minute))
	require.Len(t, got, 2)
	require.Equal(t, "request", got[0].State)
	require.Equal(t, "response", got[1].State)

	require.Empty(t, l.AsOf(base.Add(-time.Second)))
	require.Len(t, l.AsOf(base.Add(time.Hour)), 3)
}

func TestAsOfStopsAtFirstFutureEntry(t *testing.T) {
	base := time.Date(2023, time.March, 1, 10, 0, 0, 0, time.UTC)

	l := New("request", base)
	l.Push("response", base.Add(time.Hour))
	// reported out of order: earlier timestamp after a later one
	l.Push("completed", base.Add(time.Minute))

	// push order wins: the scan stops at the future-dated entry
	got := l.AsOf(base.Add(2 * time.Minute))
	require.Len(t, got, 1)
	require.Equal(t, "request", got[0].State)
}

func TestJSONRoundTripPreservesOrder(t *testing.T) {
	base := time.Date(2023, time.March, 1, 10, 0, 0, 0, time.UTC)

	l := New("proposal_sent", base)
	l.Push("offer_received", base.Add(time.Minute))
	l.Push("request_sent", base.Add(2*time.Minute))

	data, err := json.Marshal(l)
	require.NoError(t, err)

	restored := &Log{}
	require.NoError(t, json.Unmarshal(data, restored))

	require.Equal(t, l.Entries(), restored.Entries())
	require.Equal(t, "request_sent", restored.CurrentState())
}

func TestMarshalEmptyLog(t *testing.T) {
	data, err := json.Marshal(&Log{})
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(data))
}
