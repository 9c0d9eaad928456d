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

package ipc

import (
	"encoding/binary"
	"net/netip"
	"strings"

	"github.com/routeguard/routeguard/pkg/private/serrors"
	"github.com/routeguard/routeguard/pkg/rpki"
)

// Type identifies the message variant carried by a frame.
type Type uint32

// Control channel message types. The supervisor drives staging and session
// handoffs; the engine broadcasts recomputed sets to the consumer.
const (
	// TypeSessionConn hands off a new session socket (supervisor→engine).
	TypeSessionConn Type = iota + 1
	// TypeConsumerConn establishes the consumer channel (supervisor→engine).
	TypeConsumerConn
	// TypeReconfBegin starts staging; carries the settings payload.
	TypeReconfBegin
	// TypeAttestation stages or broadcasts one attestation record.
	TypeAttestation
	// TypeAuthzIdentity opens one authorization transcript.
	TypeAuthzIdentity
	// TypeAuthzProviders carries the flat provider AS array.
	TypeAuthzProviders
	// TypeAuthzFamilies carries the per-provider family markers: one byte
	// per provider when staging, the packed bitmask trailer on broadcast.
	TypeAuthzFamilies
	// TypeAuthzDone closes one authorization transcript.
	TypeAuthzDone
	// TypeSessionConfig creates or keeps a session (supervisor→engine).
	TypeSessionConfig
	// TypeDrain is the reconfiguration drain handshake, echoed back.
	TypeDrain
	// TypeCommit finishes staging: swap, sweep, recalculate; acked back.
	TypeCommit
	// TypeShowSession requests one session's status record.
	TypeShowSession
	// TypeSessionStatus answers TypeShowSession (engine→control).
	TypeSessionStatus
	// TypeEndOfListing terminates a status listing, echoed back.
	TypeEndOfListing
	// TypeAttestationSetBegin opens the attestation broadcast (engine→consumer).
	TypeAttestationSetBegin
	// TypeAuthzPrep pre-announces the authorization broadcast sizes.
	TypeAuthzPrep
	// TypeSetDone marks the end of one full broadcast (engine→consumer).
	TypeSetDone
)

func (t Type) String() string {
	switch t {
	case TypeSessionConn:
		return "session-conn"
	case TypeConsumerConn:
		return "consumer-conn"
	case TypeReconfBegin:
		return "reconf-begin"
	case TypeAttestation:
		return "attestation"
	case TypeAuthzIdentity:
		return "authz-identity"
	case TypeAuthzProviders:
		return "authz-providers"
	case TypeAuthzFamilies:
		return "authz-families"
	case TypeAuthzDone:
		return "authz-done"
	case TypeSessionConfig:
		return "session-config"
	case TypeDrain:
		return "drain"
	case TypeCommit:
		return "commit"
	case TypeShowSession:
		return "show-session"
	case TypeSessionStatus:
		return "session-status"
	case TypeEndOfListing:
		return "end-of-listing"
	case TypeAttestationSetBegin:
		return "attestation-set-begin"
	case TypeAuthzPrep:
		return "authz-prep"
	case TypeSetDone:
		return "set-done"
	default:
		return "unknown"
	}
}

// carriesFile reports whether frames of this type hand off a descriptor.
func (t Type) carriesFile() bool {
	return t == TypeSessionConn || t == TypeConsumerConn
}

// Payload sizes of the fixed-length message types.
const (
	AttestationLen   = 36
	SettingsLen      = 12
	AuthzIdentityLen = 16
	AuthzPrepLen     = 16
	DescriptionLen   = 32
	SessionStatusLen = 72

	attAFIIPv4 = 1
	attAFIIPv6 = 2
)

// EncodeAttestation serializes one attestation record.
func EncodeAttestation(a rpki.Attestation) []byte {
	b := make([]byte, AttestationLen)
	addr := a.Prefix.Addr()
	if addr.Is4() {
		b[0] = attAFIIPv4
		v4 := addr.As4()
		copy(b[4:], v4[:])
	} else {
		b[0] = attAFIIPv6
		v16 := addr.As16()
		copy(b[4:], v16[:])
	}
	b[1] = uint8(a.Prefix.Bits())
	b[2] = a.MaxLength
	binary.BigEndian.PutUint32(b[20:], a.OriginAS)
	binary.BigEndian.PutUint32(b[24:], a.Authority)
	binary.BigEndian.PutUint64(b[28:], uint64(a.Expires))
	return b
}

// DecodeAttestation parses one attestation record, validating the length
// and address family once at decode time.
func DecodeAttestation(data []byte) (rpki.Attestation, error) {
	if len(data) != AttestationLen {
		return rpki.Attestation{}, serrors.New("bad attestation length", "len", len(data))
	}
	var addr netip.Addr
	var maxBits int
	switch data[0] {
	case attAFIIPv4:
		addr = netip.AddrFrom4([4]byte(data[4:8]))
		maxBits = 32
	case attAFIIPv6:
		addr = netip.AddrFrom16([16]byte(data[4:20]))
		maxBits = 128
	default:
		return rpki.Attestation{}, serrors.New("bad attestation address family", "afi", data[0])
	}
	bits := int(data[1])
	if bits > maxBits {
		return rpki.Attestation{}, serrors.New("bad attestation prefix length", "bits", bits)
	}
	return rpki.Attestation{
		Prefix:    netip.PrefixFrom(addr, bits),
		MaxLength: data[2],
		OriginAS:  binary.BigEndian.Uint32(data[20:24]),
		Authority: binary.BigEndian.Uint32(data[24:28]),
		Expires:   int64(binary.BigEndian.Uint64(data[28:36])),
	}, nil
}

// Settings is the process-wide settings payload of a begin-reconfig
// message: the session timing values advertised to downstream routers.
type Settings struct {
	RefreshInterval uint32
	RetryInterval   uint32
	ExpireInterval  uint32
}

// Encode serializes the settings payload.
func (s Settings) Encode() []byte {
	b := make([]byte, SettingsLen)
	binary.BigEndian.PutUint32(b[0:], s.RefreshInterval)
	binary.BigEndian.PutUint32(b[4:], s.RetryInterval)
	binary.BigEndian.PutUint32(b[8:], s.ExpireInterval)
	return b
}

// DecodeSettings parses a settings payload.
func DecodeSettings(data []byte) (Settings, error) {
	if len(data) != SettingsLen {
		return Settings{}, serrors.New("bad settings length", "len", len(data))
	}
	return Settings{
		RefreshInterval: binary.BigEndian.Uint32(data[0:4]),
		RetryInterval:   binary.BigEndian.Uint32(data[4:8]),
		ExpireInterval:  binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// AuthzIdentity opens one authorization transcript: the customer AS, the
// number of providers that follow, and the bucket expiry.
type AuthzIdentity struct {
	CustomerAS uint32
	Count      uint32
	Expires    int64
}

// Encode serializes the identity record.
func (a AuthzIdentity) Encode() []byte {
	b := make([]byte, AuthzIdentityLen)
	binary.BigEndian.PutUint32(b[0:], a.CustomerAS)
	binary.BigEndian.PutUint32(b[4:], a.Count)
	binary.BigEndian.PutUint64(b[8:], uint64(a.Expires))
	return b
}

// DecodeAuthzIdentity parses an identity record.
func DecodeAuthzIdentity(data []byte) (AuthzIdentity, error) {
	if len(data) != AuthzIdentityLen {
		return AuthzIdentity{}, serrors.New("bad authz identity length", "len", len(data))
	}
	return AuthzIdentity{
		CustomerAS: binary.BigEndian.Uint32(data[0:4]),
		Count:      binary.BigEndian.Uint32(data[4:8]),
		Expires:    int64(binary.BigEndian.Uint64(data[8:16])),
	}, nil
}

// AuthzPrep pre-announces the total trailer-inclusive byte size and bucket
// count of the authorization broadcast so the consumer can pre-size its
// storage. This is the only place a length is communicated ahead of the
// corresponding payload.
type AuthzPrep struct {
	DataSize uint64
	Entries  uint32
}

// Encode serializes the prep record.
func (p AuthzPrep) Encode() []byte {
	b := make([]byte, AuthzPrepLen)
	binary.BigEndian.PutUint64(b[0:], p.DataSize)
	binary.BigEndian.PutUint32(b[8:], p.Entries)
	return b
}

// DecodeAuthzPrep parses a prep record.
func DecodeAuthzPrep(data []byte) (AuthzPrep, error) {
	if len(data) != AuthzPrepLen {
		return AuthzPrep{}, serrors.New("bad authz prep length", "len", len(data))
	}
	return AuthzPrep{
		DataSize: binary.BigEndian.Uint64(data[0:8]),
		Entries:  binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// EncodeProviders serializes the flat provider AS array of one bucket.
func EncodeProviders(providers []rpki.ProviderEntry) []byte {
	b := make([]byte, 4*len(providers))
	for i, p := range providers {
		binary.BigEndian.PutUint32(b[4*i:], p.AS)
	}
	return b
}

// DecodeProviders parses a provider array. The byte length must equal
// count times four. The comparison is done in wide arithmetic so an
// oversized count cannot wrap past the check.
func DecodeProviders(data []byte, count uint32) ([]uint32, error) {
	if uint64(len(data)) != uint64(count)*4 {
		return nil, serrors.New("bad provider array length",
			"len", len(data), "count", count)
	}
	providers := make([]uint32, count)
	for i := range providers {
		providers[i] = binary.BigEndian.Uint32(data[4*i:])
	}
	return providers, nil
}

// EncodeFamilies serializes the staging family-marker array: one byte per
// provider.
func EncodeFamilies(families []rpki.Family) []byte {
	b := make([]byte, len(families))
	for i, f := range families {
		b[i] = uint8(f)
	}
	return b
}

// DecodeFamilies parses a staging family-marker array. The byte length
// must equal the provider count, and every marker must be valid.
func DecodeFamilies(data []byte, count uint32) ([]rpki.Family, error) {
	if uint32(len(data)) != count {
		return nil, serrors.New("bad family array length",
			"len", len(data), "count", count)
	}
	families := make([]rpki.Family, count)
	for i, v := range data {
		f := rpki.Family(v)
		if !f.Valid() {
			return nil, serrors.New("bad family marker", "index", i, "value", v)
		}
		families[i] = f
	}
	return families, nil
}

// EncodeDescription pads a session description to its fixed wire length.
func EncodeDescription(descr string) ([]byte, error) {
	if len(descr) >= DescriptionLen {
		return nil, serrors.New("session description too long", "len", len(descr))
	}
	b := make([]byte, DescriptionLen)
	copy(b, descr)
	return b, nil
}

// DecodeDescription parses a fixed-length session description.
func DecodeDescription(data []byte) (string, error) {
	if len(data) != DescriptionLen {
		return "", serrors.New("bad session description length", "len", len(data))
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

// SessionStatus is the rendered status record of one session.
type SessionStatus struct {
	Description string
	State       string
	RxMessages  uint64
	RxBytes     uint64
	LastEvent   int64
}

// Encode serializes a session status record.
func (s SessionStatus) Encode() []byte {
	b := make([]byte, SessionStatusLen)
	copy(b[0:32], s.Description)
	copy(b[32:48], s.State)
	binary.BigEndian.PutUint64(b[48:], s.RxMessages)
	binary.BigEndian.PutUint64(b[56:], s.RxBytes)
	binary.BigEndian.PutUint64(b[64:], uint64(s.LastEvent))
	return b
}

// DecodeSessionStatus parses a session status record.
func DecodeSessionStatus(data []byte) (SessionStatus, error) {
	if len(data) != SessionStatusLen {
		return SessionStatus{}, serrors.New("bad session status length", "len", len(data))
	}
	return SessionStatus{
		Description: strings.TrimRight(string(data[0:32]), "\x00"),
		State:       strings.TrimRight(string(data[32:48]), "\x00"),
		RxMessages:  binary.BigEndian.Uint64(data[48:56]),
		RxBytes:     binary.BigEndian.Uint64(data[56:64]),
		LastEvent:   int64(binary.BigEndian.Uint64(data[64:72])),
	}, nil
}
