/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBus()

	var got []string

	b.Subscribe(CredentialAdded, func(_ string, payload interface{}) {
		ex, ok := payload.(Exchange)
		require.True(t, ok)
		got = append(got, ex.State)
	})

	b.Publish(CredentialAdded, Exchange{ID: "1", State: "credential_acked"})
	b.Publish(ProofVerified, Exchange{ID: "2", State: "verified"}) // different topic, not delivered

	require.Equal(t, []string{"credential_acked"}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()

	count := 0
	unsubscribe := b.Subscribe(PartnerUpdated, func(string, interface{}) { count++ })

	b.Publish(PartnerUpdated, Exchange{})
	unsubscribe()
	b.Publish(PartnerUpdated, Exchange{})

	require.Equal(t, 1, count)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBus()

	var (
		mu    sync.Mutex
		total int
	)

	b.Subscribe(ProofStateChanged, func(string, interface{}) {
		mu.Lock()
		total++
		mu.Unlock()
	})

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				b.Publish(ProofStateChanged, Exchange{})
			}
		}()
	}

	wg.Wait()

	require.Equal(t, 1000, total)
}
