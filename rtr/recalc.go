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
	"github.com/routeguard/routeguard/pkg/ipc"
	"github.com/routeguard/routeguard/pkg/log"
	"github.com/routeguard/routeguard/pkg/rpki"
	"github.com/routeguard/routeguard/rtr/store"
)

// recalc rebuilds the deduplicated union of the active sets and broadcasts
// it to the consumer. Without a consumer channel the broadcast is skipped;
// a write failure tears the channel down and the engine keeps operating.
func (e *Engine) recalc() {
	if e.consumer == nil {
		log.Debug("No consumer channel, skipping broadcast")
		return
	}
	if err := broadcast(e.active, e.consumer); err != nil {
		log.Error("Broadcast failed, dropping consumer channel", "err", err)
		e.dropConsumer()
		return
	}
	metricRecalcs.Inc()
}

// broadcast emits the full recomputed data set as one message sequence:
// the attestation set in ascending key order, then the authorization set
// with its packed encoding, then the terminating marker. Rebuilding
// through a merge guarantees the broadcast is deduplicated and
// conflict-resolved even if the sources were not.
func broadcast(active *Snapshot, c *ipc.Conn) error {
	union := newUnion(active)

	if err := compose(c, ipc.TypeAttestationSetBegin, nil); err != nil {
		return err
	}
	for _, a := range union.Attestations() {
		if err := compose(c, ipc.TypeAttestation, ipc.EncodeAttestation(a)); err != nil {
			return err
		}
	}

	auths := union.Authorizations()
	var prep ipc.AuthzPrep
	for _, a := range auths {
		prep.DataSize += uint64(rpki.PackedSize(a.Providers))
		prep.Entries++
	}
	if err := compose(c, ipc.TypeAuthzPrep, prep.Encode()); err != nil {
		return err
	}
	for _, a := range auths {
		ident := ipc.AuthzIdentity{
			CustomerAS: a.CustomerAS,
			Count:      uint32(len(a.Providers)),
		}
		if err := compose(c, ipc.TypeAuthzIdentity, ident.Encode()); err != nil {
			return err
		}
		if err := compose(c, ipc.TypeAuthzProviders, ipc.EncodeProviders(a.Providers)); err != nil {
			return err
		}
		if trailer := rpki.PackFamilies(a.Providers); trailer != nil {
			if err := compose(c, ipc.TypeAuthzFamilies, trailer); err != nil {
				return err
			}
		}
		if err := compose(c, ipc.TypeAuthzDone, nil); err != nil {
			return err
		}
	}

	return compose(c, ipc.TypeSetDone, nil)
}

// newUnion replays the active sets into a fresh store. The replay cannot
// fail: every element in the active store was validated on insert.
func newUnion(active *Snapshot) *store.Store {
	union := store.New()
	if err := active.Store.MergeInto(union); err != nil {
		// Unreachable with validated active data; a failure here is a
		// corrupted store and there is nothing sensible to salvage.
		panic(err)
	}
	return union
}

func compose(c *ipc.Conn, t ipc.Type, data []byte) error {
	if err := c.Compose(t, 0, 0, data); err != nil {
		return err
	}
	metricBroadcastMsgs.Inc()
	return nil
}
