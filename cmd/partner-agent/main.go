/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

// partner-agent receives cloud agent webhook events, tracks partner and
// exchange state in memory and logs the domain events it derives. It is the
// reference wiring of the event engine; production deployments swap the
// storage provider and subscribe their own consumers.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger-labs/partner-agent/pkg/chat"
	"github.com/hyperledger-labs/partner-agent/pkg/connection"
	"github.com/hyperledger-labs/partner-agent/pkg/credential"
	"github.com/hyperledger-labs/partner-agent/pkg/events"
	"github.com/hyperledger-labs/partner-agent/pkg/jsonld"
	"github.com/hyperledger-labs/partner-agent/pkg/proof"
	"github.com/hyperledger-labs/partner-agent/pkg/store/credex"
	"github.com/hyperledger-labs/partner-agent/pkg/store/partner"
	"github.com/hyperledger-labs/partner-agent/pkg/store/proofex"
	"github.com/hyperledger-labs/partner-agent/pkg/store/schema"
	"github.com/hyperledger-labs/partner-agent/pkg/webhook"
)

var logger = log.New("partner-agent/main")

const shutdownTimeout = 5 * time.Second

// provider bundles the shared infrastructure handed to the stores and
// managers.
type provider struct {
	sp       storage.Provider
	bus      events.Bus
	partners *partner.Repository
	creds    *credex.Repository
	proofs   *proofex.Repository
	schemas  *schema.Service
}

func (p *provider) StorageProvider() storage.Provider { return p.sp }

func (p *provider) EventBus() events.Bus { return p.bus }

func (p *provider) PartnerStore() *partner.Repository { return p.partners }

func (p *provider) CredentialStore() *credex.Repository { return p.creds }

func (p *provider) ProofStore() *proofex.Repository { return p.proofs }

func (p *provider) SchemaService() *schema.Service { return p.schemas }

func newProvider() (*provider, error) {
	p := &provider{sp: mem.NewProvider(), bus: events.NewBus()}

	var err error

	if p.partners, err = partner.New(p); err != nil {
		return nil, err
	}

	if p.creds, err = credex.New(p); err != nil {
		return nil, err
	}

	if p.proofs, err = proofex.New(p); err != nil {
		return nil, err
	}

	if p.schemas, err = schema.NewService(p); err != nil {
		return nil, err
	}

	return p, nil
}

func main() {
	listen := flag.String("listen", ":8030", "webhook listen address")
	trustPing := flag.Bool("trust-ping", true, "track partner reachability from trust pings")
	flag.Parse()

	p, err := newProvider()
	if err != nil {
		logger.Fatalf("initialize stores: %s", err)
	}

	chatMgr, err := chat.NewManager(p)
	if err != nil {
		logger.Fatalf("initialize chat manager: %s", err)
	}

	var opts []webhook.Opt
	if *trustPing {
		opts = append(opts, webhook.WithPingHandler(connection.NewPingManager(p)))
	}

	dispatcher := webhook.NewDispatcher(
		connection.NewManager(p),
		credential.NewHolder(p),
		credential.NewIssuer(p),
		proof.NewManager(p),
		jsonld.NewManager(p),
		chatMgr,
		opts...,
	)

	logDomainEvents(p.bus)

	srv := webhook.NewServer(*listen, dispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("webhook ingress listening on %s", *listen)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("webhook ingress: %s", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %s", err)
	}
}

// logDomainEvents subscribes a logging consumer to every domain topic the
// managers emit.
func logDomainEvents(bus events.Bus) {
	for _, topic := range []string{
		events.PartnerAdded, events.PartnerUpdated, events.PartnerRequestReceived, events.PartnerPingStatus,
		events.CredentialAdded, events.CredentialOffered, events.CredentialStateChanged, events.CredentialRevoked,
		events.CredentialProposalReceived, events.CredentialRequestReceived,
		events.ProofReceived, events.ProofVerified, events.ProofStateChanged,
		events.ChatMessageReceived,
	} {
		bus.Subscribe(topic, func(topic string, payload interface{}) {
			if ex, ok := payload.(events.Exchange); ok {
				logger.Infof("%s: exchange %s state %s", topic, ex.ExchangeID, ex.State)
				return
			}

			logger.Infof("%s", topic)
		})
	}
}
