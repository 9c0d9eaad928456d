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

// Package store holds the authoritative attestation sets of the RTR
// engine: the route-origin attestation set and the AS-path authorization
// set, with merge and expiration operations over them.
package store

import (
	"slices"

	"github.com/routeguard/routeguard/pkg/rpki"
)

// Store is one pair of attestation sets. It is not safe for concurrent
// use; all mutation happens on the engine goroutine.
type Store struct {
	attestations   map[rpki.AttestationKey]rpki.Attestation
	authorizations map[uint32]*rpki.Authorization
}

// New returns an empty store.
func New() *Store {
	return &Store{
		attestations:   make(map[rpki.AttestationKey]rpki.Attestation),
		authorizations: make(map[uint32]*rpki.Authorization),
	}
}

// InsertAttestation adds one attestation. Duplicate keys are silently
// ignored; the first inserted entry wins.
func (s *Store) InsertAttestation(a rpki.Attestation) {
	key := a.Key()
	if _, ok := s.attestations[key]; ok {
		return
	}
	s.attestations[key] = a
}

// InsertAuthorization merges one authorization into the set, creating the
// customer bucket if it does not exist yet. Conflicting family markers for
// the same provider widen to FamilyBoth. An invalid family marker is a
// configuration error between cooperating processes.
func (s *Store) InsertAuthorization(a rpki.Authorization) error {
	bucket, ok := s.authorizations[a.CustomerAS]
	if !ok {
		bucket = &rpki.Authorization{CustomerAS: a.CustomerAS, Expires: a.Expires}
		s.authorizations[a.CustomerAS] = bucket
	}
	for _, p := range a.Providers {
		if err := bucket.Insert(p.AS, p.Family); err != nil {
			return err
		}
	}
	return nil
}

// Expire removes every attestation and authorization whose expiry
// timestamp is non-zero and not after now. It returns the number of
// entries removed; a non-zero count requires a recalculation.
func (s *Store) Expire(now int64) int {
	removed := 0
	for key, a := range s.attestations {
		if a.Expires != 0 && a.Expires <= now {
			delete(s.attestations, key)
			removed++
		}
	}
	for as, a := range s.authorizations {
		if a.Expires != 0 && a.Expires <= now {
			delete(s.authorizations, as)
			removed++
		}
	}
	return removed
}

// MergeInto replays every element of the store into dst. Replaying through
// the insert operations guarantees that dst is deduplicated and
// conflict-resolved even if the sources were not.
func (s *Store) MergeInto(dst *Store) error {
	for _, a := range s.attestations {
		dst.InsertAttestation(a)
	}
	for _, a := range s.authorizations {
		if err := dst.InsertAuthorization(*a); err != nil {
			return err
		}
	}
	return nil
}

// Attestations returns all attestations in ascending key order.
func (s *Store) Attestations() []rpki.Attestation {
	out := make([]rpki.Attestation, 0, len(s.attestations))
	for _, a := range s.attestations {
		out = append(out, a)
	}
	slices.SortFunc(out, rpki.Attestation.Compare)
	return out
}

// Authorizations returns all authorization buckets in ascending customer
// AS order. The provider slices are shared with the store and must be
// treated as read-only.
func (s *Store) Authorizations() []rpki.Authorization {
	out := make([]rpki.Authorization, 0, len(s.authorizations))
	for _, a := range s.authorizations {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b rpki.Authorization) int {
		switch {
		case a.CustomerAS < b.CustomerAS:
			return -1
		case a.CustomerAS > b.CustomerAS:
			return 1
		default:
			return 0
		}
	})
	return out
}

// NumAttestations returns the number of attestations in the store.
func (s *Store) NumAttestations() int {
	return len(s.attestations)
}

// NumAuthorizations returns the number of authorization buckets.
func (s *Store) NumAuthorizations() int {
	return len(s.authorizations)
}
