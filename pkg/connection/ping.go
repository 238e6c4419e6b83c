/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"errors"
	"fmt"

	"github.com/hyperledger-labs/partner-agent/pkg/aries"
	"github.com/hyperledger-labs/partner-agent/pkg/events"
	"github.com/hyperledger-labs/partner-agent/pkg/store/partner"
)

// PingManager tracks trust-ping liveness of known partners. It is an
// optional capability: deployments that do not enable trust pings simply
// never construct one, and the dispatcher ignores ping events.
type PingManager struct {
	repo *partner.Repository
	bus  events.Bus
}

// NewPingManager returns the ping manager.
func NewPingManager(p Provider) *PingManager {
	return &PingManager{repo: p.PartnerStore(), bus: p.EventBus()}
}

// HandlePing marks the partner behind a ping event as reachable. Ping events
// carry no exchange state machine; a partner lookup miss is a no-op.
func (pm *PingManager) HandlePing(ev *aries.PingEvent) error {
	if ev.ConnectionID == "" {
		return errors.New("ping event without connection id")
	}

	rec, err := pm.repo.GetByConnectionID(ev.ConnectionID)
	if errors.Is(err, partner.ErrNotFound) {
		logger.Debugf("ping for unknown connection %s, ignoring", ev.ConnectionID)
		return nil
	}

	if err != nil {
		return err
	}

	if rec.Reachable {
		return nil
	}

	rec.Reachable = true
	rec.TrustPing = true

	if err := pm.repo.Save(rec); err != nil {
		return fmt.Errorf("save partner after ping: %w", err)
	}

	pm.bus.Publish(events.PartnerPingStatus, events.Exchange{
		ID:           rec.ID,
		ExchangeID:   rec.ConnectionID,
		ConnectionID: rec.ConnectionID,
		State:        rec.State(),
	})

	return nil
}
