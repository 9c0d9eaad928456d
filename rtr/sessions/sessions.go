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

// Package sessions manages the per-peer session collection of the RTR
// engine: creation from supervisor handoffs, survival across
// reconfigurations, transport adoption and readiness signaling. The
// per-peer distribution protocol itself is pluggable via Handler; the
// default handler only accounts received traffic.
package sessions

import (
	"context"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/routeguard/routeguard/pkg/ipc"
	"github.com/routeguard/routeguard/pkg/log"
	"github.com/routeguard/routeguard/rtr"
)

var metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "rtr_sessions",
	Help: "Number of sessions in the registry.",
})

// Session states as rendered in status records. They must fit the fixed
// state field of the status wire encoding.
const (
	stateInitial     = "awaiting socket"
	stateEstablished = "established"
	stateClosed      = "closed"
)

// Handler consumes the payload bytes of one session. Consume runs on the
// engine goroutine.
type Handler interface {
	Consume(ctx context.Context, data []byte) error
}

// Registry is a growable session collection keyed by peer id. Lookup,
// Create and MergeConfig run on the engine goroutine; All and the session
// pumps may run concurrently.
type Registry struct {
	newHandler func(peerID uint32) Handler

	mtx       sync.Mutex
	sessions  map[uint32]*Session
	ready     chan uint32
	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates an empty registry. newHandler constructs the
// per-peer protocol handler; nil means received data is discarded after
// accounting.
func NewRegistry(newHandler func(peerID uint32) Handler) *Registry {
	return &Registry{
		newHandler: newHandler,
		sessions:   make(map[uint32]*Session),
		ready:      make(chan uint32, 64),
		done:       make(chan struct{}),
	}
}

// Lookup returns the session with the given peer id.
func (r *Registry) Lookup(peerID uint32) (rtr.Session, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	s, ok := r.sessions[peerID]
	if !ok {
		return nil, false
	}
	return s, true
}

// Create adds a session for the peer id. A session for an existing id is
// replaced; the supervisor assigns ids uniquely.
func (r *Registry) Create(peerID uint32, descr string) rtr.Session {
	s := &Session{
		id:       peerID,
		registry: r,
		descr:    descr,
		state:    stateInitial,
	}
	if r.newHandler != nil {
		s.handler = r.newHandler(peerID)
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if old, ok := r.sessions[peerID]; ok {
		old.close()
	}
	r.sessions[peerID] = s
	metricSessions.Set(float64(len(r.sessions)))
	log.Debug("Session created", "peer_id", peerID, "descr", descr)
	return s
}

// MergeConfig finishes a reconfiguration pass: sessions that were not
// marked kept are released, and the marks are reset for the next pass.
func (r *Registry) MergeConfig() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for id, s := range r.sessions {
		if s.takeKept() {
			continue
		}
		s.close()
		delete(r.sessions, id)
		log.Debug("Session released on reconfiguration", "peer_id", id)
	}
	metricSessions.Set(float64(len(r.sessions)))
}

// Ready delivers peer ids with pending work.
func (r *Registry) Ready() <-chan uint32 {
	return r.ready
}

// All returns every session in ascending peer id order.
func (r *Registry) All() []rtr.Session {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]rtr.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Close releases all sessions and stops readiness delivery.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mtx.Lock()
		defer r.mtx.Unlock()
		for id, s := range r.sessions {
			s.close()
			delete(r.sessions, id)
		}
		metricSessions.Set(0)
	})
}

// notify queues a readiness event unless the registry is shutting down.
func (r *Registry) notify(peerID uint32) {
	select {
	case r.ready <- peerID:
	case <-r.done:
	}
}

// Session is one downstream peer connection.
type Session struct {
	id       uint32
	registry *Registry
	handler  Handler

	mtx       sync.Mutex
	descr     string
	conn      net.Conn
	state     string
	kept      bool
	pending   [][]byte
	rxMsgs    uint64
	rxBytes   uint64
	lastEvent int64
}

var _ rtr.Session = (*Session)(nil)

// ID returns the peer id assigned by the supervisor.
func (s *Session) ID() uint32 {
	return s.id
}

// Attach adopts a handed-off transport descriptor and starts reading from
// it. A transport attached to an already established session replaces the
// old one.
func (s *Session) Attach(f *os.File) {
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		log.Error("Adopting session transport failed", "peer_id", s.id, "err", err)
		return
	}
	s.mtx.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.state = stateEstablished
	s.mtx.Unlock()
	log.Debug("Session transport attached", "peer_id", s.id)
	go func() {
		defer log.HandlePanic()
		s.pump(conn)
	}()
}

// pump reads from the transport and queues received data for Process,
// raising readiness events towards the engine loop.
func (s *Session) pump(conn net.Conn) {
	buf := make([]byte, 2048)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.mtx.Lock()
			s.pending = append(s.pending, data)
			s.rxMsgs++
			s.rxBytes += uint64(n)
			s.lastEvent = time.Now().Unix()
			s.mtx.Unlock()
			s.registry.notify(s.id)
		}
		if err != nil {
			s.mtx.Lock()
			if s.conn == conn {
				s.conn = nil
				s.state = stateClosed
			}
			s.mtx.Unlock()
			conn.Close()
			s.registry.notify(s.id)
			return
		}
	}
}

// Keep marks the session as surviving the current reconfiguration.
func (s *Session) Keep() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.kept = true
}

// takeKept reads and resets the kept mark.
func (s *Session) takeKept() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	kept := s.kept
	s.kept = false
	return kept
}

// Process handles queued data on the engine goroutine.
func (s *Session) Process(ctx context.Context) error {
	s.mtx.Lock()
	batch := s.pending
	s.pending = nil
	s.mtx.Unlock()
	if s.handler == nil {
		return nil
	}
	for _, data := range batch {
		if err := s.handler.Consume(ctx, data); err != nil {
			return err
		}
	}
	return nil
}

// Status renders the session's status record.
func (s *Session) Status() ipc.SessionStatus {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return ipc.SessionStatus{
		Description: s.descr,
		State:       s.state,
		RxMessages:  s.rxMsgs,
		RxBytes:     s.rxBytes,
		LastEvent:   s.lastEvent,
	}
}

func (s *Session) close() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = stateClosed
}
