// Copyright 2026 The Routeguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rtr implements the distribution engine of the routeguard
// control plane. The engine holds the authoritative attestation sets,
// keeps them fresh, serves them to downstream sessions and feeds the
// decision engine the recomputed data over an internal control channel.
package rtr

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/routeguard/routeguard/pkg/ipc"
	"github.com/routeguard/routeguard/pkg/log"
	"github.com/routeguard/routeguard/pkg/private/serrors"
	"github.com/routeguard/routeguard/pkg/rpki"
	"github.com/routeguard/routeguard/rtr/store"
)

// DefaultExpireInterval is the cadence of the expiration sweep over the
// active attestation sets.
const DefaultExpireInterval = 300 * time.Second

// Snapshot is one complete, internally consistent configuration: the
// process-wide settings plus one attestation store. Two snapshots exist at
// any time, the active one and the staged one under construction.
type Snapshot struct {
	Settings ipc.Settings
	Store    *store.Store
}

// Engine is the single-threaded distribution engine. All mutation of the
// configuration slot, the attestation store and the session collection
// happens on the goroutine running Run; the only concurrent helpers are
// the channel readers, which never touch shared state.
type Engine struct {
	// Supervisor is the control channel to the supervising parent. Losing
	// it is fatal: it is the sole source of configuration and handoffs.
	Supervisor *ipc.Conn
	// Sessions is the externally owned per-peer session collection.
	Sessions Registry
	// ExpireInterval overrides the sweep cadence; used in tests.
	ExpireInterval time.Duration

	active  *Snapshot
	staged  *Snapshot
	pending *authzTranscript

	consumer     *ipc.Conn
	consumerDown chan *ipc.Conn
}

// authzTranscript tracks one in-flight authorization sub-sequence:
// identity, provider array, optional family array, done.
type authzTranscript struct {
	ident        ipc.AuthzIdentity
	providers    []uint32
	families     []rpki.Family
	gotProviders bool
}

// Run executes the engine event loop until the context is canceled or a
// fatal error occurs. Cancellation is cooperative: it is observed at the
// loop boundary and never interrupts an in-flight message dispatch.
func (e *Engine) Run(ctx context.Context) error {
	if e.Supervisor == nil {
		return serrors.New("no supervisor channel")
	}
	if e.Sessions == nil {
		return serrors.New("no session registry")
	}
	if e.ExpireInterval == 0 {
		e.ExpireInterval = DefaultExpireInterval
	}
	if e.active == nil {
		e.active = &Snapshot{Store: store.New()}
	}
	e.consumerDown = make(chan *ipc.Conn, 4)

	superMsgs := make(chan ipc.Msg, 64)
	go func() {
		defer log.HandlePanic()
		readFrames(e.Supervisor, superMsgs)
	}()

	ticker := time.NewTicker(e.ExpireInterval)
	defer ticker.Stop()

	log.Info("RTR engine ready")
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case m, ok := <-superMsgs:
			if !ok {
				return serrors.New("lost connection to supervisor")
			}
			if err := e.dispatchSupervisor(ctx, m); err != nil {
				return err
			}
			// Drain every fully buffered frame before other work;
			// frames on one channel are processed in arrival order.
		drained:
			for {
				select {
				case m, ok := <-superMsgs:
					if !ok {
						return serrors.New("lost connection to supervisor")
					}
					if err := e.dispatchSupervisor(ctx, m); err != nil {
						return err
					}
				default:
					break drained
				}
			}
		case c := <-e.consumerDown:
			if c == e.consumer && e.consumer != nil {
				log.Info("Lost connection to consumer")
				e.dropConsumer()
			}
		case peerID := <-e.Sessions.Ready():
			e.handleSessionReady(ctx, peerID)
		case <-ticker.C:
			e.sweep(time.Now().Unix())
		}
	}
}

// readFrames forwards decoded frames to the engine loop and closes the
// channel when the connection is gone.
func readFrames(c *ipc.Conn, out chan<- ipc.Msg) {
	defer close(out)
	for {
		m, err := c.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Error("Control channel read failed", "err", err)
			}
			return
		}
		out <- m
	}
}

// dispatchSupervisor handles one control message. A returned error is a
// protocol-invariant violation between cooperating processes and fatal to
// the engine.
func (e *Engine) dispatchSupervisor(ctx context.Context, m ipc.Msg) error {
	metricSupervisorMsgs.WithLabelValues(m.Type.String()).Inc()
	switch m.Type {
	case ipc.TypeConsumerConn:
		if m.File == nil {
			log.Error("Expected consumer descriptor but didn't receive any")
			return nil
		}
		conn, err := ipc.FromFile(m.File)
		if err != nil {
			log.Error("Adopting consumer channel failed", "err", err)
			return nil
		}
		if e.consumer != nil {
			log.Error("Unexpected consumer channel received, replacing")
			e.dropConsumer()
		}
		e.setConsumer(conn)
	case ipc.TypeSessionConn:
		if m.File == nil {
			log.Error("Expected session descriptor but didn't receive any")
			return nil
		}
		s, ok := e.Sessions.Lookup(m.PeerID)
		if !ok {
			log.Error("Session handoff for unknown peer", "peer_id", m.PeerID)
			m.File.Close()
			return nil
		}
		s.Attach(m.File)
	case ipc.TypeReconfBegin:
		settings, err := ipc.DecodeSettings(m.Data)
		if err != nil {
			return serrors.Wrap("begin-reconfig", err)
		}
		e.staged = &Snapshot{Settings: settings, Store: store.New()}
	case ipc.TypeAttestation:
		if e.staged == nil {
			return serrors.New("attestation item while not staging")
		}
		a, err := ipc.DecodeAttestation(m.Data)
		if err != nil {
			return serrors.Wrap("attestation item", err)
		}
		e.staged.Store.InsertAttestation(a)
	case ipc.TypeAuthzIdentity:
		if e.staged == nil {
			return serrors.New("authorization transcript while not staging")
		}
		if e.pending != nil {
			return serrors.New("authorization identity while one is pending",
				"pending_as", e.pending.ident.CustomerAS)
		}
		ident, err := ipc.DecodeAuthzIdentity(m.Data)
		if err != nil {
			return serrors.Wrap("authorization identity", err)
		}
		e.pending = &authzTranscript{ident: ident}
	case ipc.TypeAuthzProviders:
		if e.pending == nil {
			return serrors.New("authorization providers without identity")
		}
		providers, err := ipc.DecodeProviders(m.Data, e.pending.ident.Count)
		if err != nil {
			return serrors.Wrap("authorization providers", err)
		}
		e.pending.providers = providers
		e.pending.gotProviders = true
	case ipc.TypeAuthzFamilies:
		if e.pending == nil {
			return serrors.New("authorization families without identity")
		}
		families, err := ipc.DecodeFamilies(m.Data, e.pending.ident.Count)
		if err != nil {
			return serrors.Wrap("authorization families", err)
		}
		e.pending.families = families
	case ipc.TypeAuthzDone:
		if e.pending == nil {
			return serrors.New("authorization done without identity")
		}
		auth, err := e.pending.assemble()
		if err != nil {
			return err
		}
		e.pending = nil
		if err := e.staged.Store.InsertAuthorization(auth); err != nil {
			return serrors.Wrap("staging authorization", err)
		}
	case ipc.TypeSessionConfig:
		descr, err := ipc.DecodeDescription(m.Data)
		if err != nil {
			return serrors.Wrap("session config", err)
		}
		if s, ok := e.Sessions.Lookup(m.PeerID); ok {
			s.Keep()
		} else {
			e.Sessions.Create(m.PeerID, descr)
		}
	case ipc.TypeDrain:
		if err := e.Supervisor.Compose(ipc.TypeDrain, 0, 0, nil); err != nil {
			return serrors.Wrap("acking drain", err)
		}
	case ipc.TypeCommit:
		return e.commit()
	case ipc.TypeShowSession:
		s, ok := e.Sessions.Lookup(m.PeerID)
		if !ok {
			log.Error("Status request for unknown peer", "peer_id", m.PeerID)
			return nil
		}
		status := s.Status()
		err := e.Supervisor.Compose(ipc.TypeSessionStatus, m.PeerID, m.ReqID, status.Encode())
		if err != nil {
			return serrors.Wrap("sending session status", err)
		}
	case ipc.TypeEndOfListing:
		if err := e.Supervisor.Compose(ipc.TypeEndOfListing, 0, m.ReqID, nil); err != nil {
			return serrors.Wrap("acking end of listing", err)
		}
	default:
		log.Debug("Ignoring unexpected control message", "type", m.Type)
	}
	return nil
}

// assemble zips the transcript into one authorization bucket. Providers
// without a family array default to matching both families.
func (t *authzTranscript) assemble() (rpki.Authorization, error) {
	if !t.gotProviders && t.ident.Count > 0 {
		return rpki.Authorization{}, serrors.New("incomplete authorization transcript",
			"customer_as", t.ident.CustomerAS)
	}
	auth := rpki.Authorization{
		CustomerAS: t.ident.CustomerAS,
		Expires:    t.ident.Expires,
		Providers:  make([]rpki.ProviderEntry, len(t.providers)),
	}
	for i, as := range t.providers {
		fam := rpki.FamilyBoth
		if t.families != nil {
			fam = t.families[i]
		}
		auth.Providers[i] = rpki.ProviderEntry{AS: as, Family: fam}
	}
	return auth, nil
}

// commit swaps the staged snapshot into place. The swap is a single
// ownership move; the active snapshot is never partially overwritten.
// The new data is swept immediately and rebroadcast unconditionally.
func (e *Engine) commit() error {
	if e.staged == nil {
		return serrors.New("commit without staged configuration")
	}
	if e.pending != nil {
		return serrors.New("commit with incomplete authorization transcript",
			"pending_as", e.pending.ident.CustomerAS)
	}
	e.active = e.staged
	e.staged = nil
	e.Sessions.MergeConfig()
	if n := e.active.Store.Expire(time.Now().Unix()); n > 0 {
		log.Info("Expired staged entries on commit", "count", n)
		metricExpired.Add(float64(n))
	}
	e.recalc()
	metricReconfigs.Inc()
	log.Info("RTR engine reconfigured")
	if err := e.Supervisor.Compose(ipc.TypeCommit, 0, 0, nil); err != nil {
		return serrors.Wrap("acking commit", err)
	}
	return nil
}

// sweep expires stale entries from the active sets and rebroadcasts if
// anything was removed.
func (e *Engine) sweep(now int64) {
	n := e.active.Store.Expire(now)
	if n == 0 {
		return
	}
	log.Info("Attestation set entries expired", "count", n)
	metricExpired.Add(float64(n))
	e.recalc()
}

func (e *Engine) handleSessionReady(ctx context.Context, peerID uint32) {
	s, ok := e.Sessions.Lookup(peerID)
	if !ok {
		return
	}
	if err := s.Process(ctx); err != nil {
		log.FromCtx(ctx).Error("Session processing failed", "peer_id", peerID, "err", err)
	}
}

// setConsumer installs the consumer channel and starts draining its read
// side; the engine never expects data from the consumer, but a read error
// signals that the channel is gone.
func (e *Engine) setConsumer(conn *ipc.Conn) {
	e.consumer = conn
	down := e.consumerDown
	go func() {
		defer log.HandlePanic()
		for {
			if _, err := conn.Recv(); err != nil {
				select {
				case down <- conn:
				default:
				}
				return
			}
		}
	}()
}

// dropConsumer tears down the consumer channel. Broadcast becomes a no-op
// until a new channel is handed off; the engine keeps operating.
func (e *Engine) dropConsumer() {
	e.consumer.Close()
	e.consumer = nil
	metricConsumerDown.Inc()
}

// shutdown drains and closes the control channels. The session registry is
// externally owned and released by the caller.
func (e *Engine) shutdown() {
	if e.consumer != nil {
		e.consumer.Close()
		e.consumer = nil
	}
	e.Supervisor.Close()
	log.Info("RTR engine exiting")
}

// ActiveSnapshot returns the currently active snapshot. It must only be
// called from the engine goroutine or while the engine is not running.
func (e *Engine) ActiveSnapshot() *Snapshot {
	return e.active
}
