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

// Package rpki defines the attestation data types shared between the
// routeguard processes: route-origin attestations (ROA entries) and
// AS-path authorizations (ASPA entries).
package rpki

import (
	"cmp"
	"net/netip"

	"github.com/routeguard/routeguard/pkg/private/serrors"
)

// Family marks which address families an authorization entry applies to.
type Family uint8

const (
	// FamilyBoth matches both IPv4 and IPv6.
	FamilyBoth Family = iota
	FamilyIPv4
	FamilyIPv6
)

// Valid reports whether f is one of the defined family markers.
func (f Family) Valid() bool {
	return f <= FamilyIPv6
}

func (f Family) String() string {
	switch f {
	case FamilyBoth:
		return "both"
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "invalid"
	}
}

// Attestation is one route-origin attestation: a prefix with the maximum
// allowed announcement length, bound to the authorized origin AS. Expires
// is an absolute unix timestamp, 0 means the entry never expires.
type Attestation struct {
	Prefix    netip.Prefix
	MaxLength uint8
	OriginAS  uint32
	Authority uint32
	Expires   int64
}

// AttestationKey is the identity of an attestation for deduplication.
// The expiry timestamp is deliberately not part of the identity.
type AttestationKey struct {
	Prefix    netip.Prefix
	MaxLength uint8
	OriginAS  uint32
	Authority uint32
}

// Key returns the deduplication identity of the attestation.
func (a Attestation) Key() AttestationKey {
	return AttestationKey{
		Prefix:    a.Prefix,
		MaxLength: a.MaxLength,
		OriginAS:  a.OriginAS,
		Authority: a.Authority,
	}
}

// Compare orders attestations by address family, address, prefix length,
// max length, origin AS and authority. The order is an observable contract
// of the broadcast encoding.
func (a Attestation) Compare(b Attestation) int {
	if c := a.Prefix.Addr().Compare(b.Prefix.Addr()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Prefix.Bits(), b.Prefix.Bits()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.MaxLength, b.MaxLength); c != 0 {
		return c
	}
	if c := cmp.Compare(a.OriginAS, b.OriginAS); c != 0 {
		return c
	}
	return cmp.Compare(a.Authority, b.Authority)
}

// ProviderEntry is one authorized upstream in an authorization set.
type ProviderEntry struct {
	AS     uint32
	Family Family
}

// Authorization is the set of authorized provider ASes for one customer
// AS. The provider list is strictly ascending by AS number with no
// duplicates. Expires follows the same convention as Attestation.
type Authorization struct {
	CustomerAS uint32
	Providers  []ProviderEntry
	Expires    int64
}

// Insert merges one (provider, family) pair into the authorization,
// keeping the provider list sorted. A pair that is already present with a
// different family is widened to FamilyBoth; the widening is monotonic.
func (a *Authorization) Insert(as uint32, fam Family) error {
	if !fam.Valid() {
		return serrors.New("invalid address family in authorization",
			"customer_as", a.CustomerAS, "provider_as", as, "family", uint8(fam))
	}
	i := 0
	for ; i < len(a.Providers); i++ {
		if as < a.Providers[i].AS {
			break
		}
		if as == a.Providers[i].AS {
			if a.Providers[i].Family != fam {
				a.Providers[i].Family = FamilyBoth
			}
			return nil
		}
	}
	a.Providers = append(a.Providers, ProviderEntry{})
	copy(a.Providers[i+1:], a.Providers[i:])
	a.Providers[i] = ProviderEntry{AS: as, Family: fam}
	return nil
}

// Clone returns a deep copy of the authorization.
func (a Authorization) Clone() Authorization {
	c := a
	c.Providers = make([]ProviderEntry, len(a.Providers))
	copy(c.Providers, a.Providers)
	return c
}
