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

package rtr

import (
	"context"
	"os"

	"github.com/routeguard/routeguard/pkg/ipc"
)

// Session is one downstream peer connection. The per-peer distribution
// protocol is implemented by the surrounding system; the engine only
// exercises the lifecycle capabilities below.
type Session interface {
	// ID returns the peer id assigned by the supervisor.
	ID() uint32
	// Attach adopts a handed-off transport descriptor.
	Attach(f *os.File)
	// Keep marks the session as surviving the current reconfiguration.
	Keep()
	// Process handles pending readiness work. It runs on the engine
	// goroutine.
	Process(ctx context.Context) error
	// Status renders the session's status record.
	Status() ipc.SessionStatus
}

// Registry is the externally owned collection of per-peer sessions,
// keyed by peer id.
type Registry interface {
	// Lookup returns the session with the given peer id, if present.
	Lookup(peerID uint32) (Session, bool)
	// Create adds a new session for the peer id.
	Create(peerID uint32, descr string) Session
	// MergeConfig finishes a reconfiguration pass: sessions not marked
	// kept are released, and the marks are reset.
	MergeConfig()
	// Ready delivers peer ids with pending work to the engine loop.
	Ready() <-chan uint32
	// All returns every session in ascending peer id order.
	All() []Session
}
