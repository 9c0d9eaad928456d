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

package rpki

import (
	"encoding/binary"

	"github.com/routeguard/routeguard/pkg/private/serrors"
)

// Family bitmask values in the packed trailer, two bits per provider.
const (
	packIPv4 = 0x1
	packIPv6 = 0x2
	packBoth = 0x3
)

// PackFamilies compresses the per-provider family markers of an
// authorization into the bitmask trailer consumed by the decision engine:
// two bits per provider, sixteen providers per 32-bit big-endian word. The
// trailer is omitted entirely (nil) when every provider matches both
// families, which is the common case.
func PackFamilies(providers []ProviderEntry) []byte {
	restricted := false
	for _, p := range providers {
		if p.Family != FamilyBoth {
			restricted = true
			break
		}
	}
	if !restricted {
		return nil
	}
	words := (len(providers) + 15) / 16
	trailer := make([]byte, words*4)
	var mask uint32
	for i, p := range providers {
		switch p.Family {
		case FamilyIPv4:
			mask |= packIPv4 << ((i % 16) * 2)
		case FamilyIPv6:
			mask |= packIPv6 << ((i % 16) * 2)
		default:
			mask |= packBoth << ((i % 16) * 2)
		}
		if i%16 == 15 {
			binary.BigEndian.PutUint32(trailer[(i/16)*4:], mask)
			mask = 0
		}
	}
	if len(providers)%16 != 0 {
		binary.BigEndian.PutUint32(trailer[(len(providers)/16)*4:], mask)
	}
	return trailer
}

// UnpackFamilies decodes a packed family trailer for n providers. An empty
// trailer yields FamilyBoth for every provider.
func UnpackFamilies(trailer []byte, n int) ([]Family, error) {
	families := make([]Family, n)
	if len(trailer) == 0 {
		return families, nil
	}
	if len(trailer) != ((n+15)/16)*4 {
		return nil, serrors.New("bad family trailer length",
			"len", len(trailer), "providers", n)
	}
	for i := 0; i < n; i++ {
		word := binary.BigEndian.Uint32(trailer[(i/16)*4:])
		switch word >> ((i % 16) * 2) & packBoth {
		case packIPv4:
			families[i] = FamilyIPv4
		case packIPv6:
			families[i] = FamilyIPv6
		case packBoth:
			families[i] = FamilyBoth
		default:
			return nil, serrors.New("bad family marker in trailer", "index", i)
		}
	}
	return families, nil
}

// PackedSize returns the number of bytes the authorization occupies in the
// broadcast encoding: the flat provider array plus the optional trailer.
func PackedSize(providers []ProviderEntry) int {
	s := len(providers) * 4
	for _, p := range providers {
		if p.Family != FamilyBoth {
			return s + ((len(providers)+15)/16)*4
		}
	}
	return s
}
