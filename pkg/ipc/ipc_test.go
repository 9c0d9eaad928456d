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

package ipc_test

import (
	"bufio"
	"net/netip"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/routeguard/routeguard/pkg/ipc"
	"github.com/routeguard/routeguard/pkg/rpki"
)

// connPair builds two framed connections over a unix socketpair.
func connPair(t *testing.T) (*ipc.Conn, *ipc.Conn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	a, err := ipc.FromFile(os.NewFile(uintptr(fds[0]), "pair-a"))
	require.NoError(t, err)
	b, err := ipc.FromFile(os.NewFile(uintptr(fds[1]), "pair-b"))
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestFrameRoundtrip(t *testing.T) {
	a, b := connPair(t)

	msgs := []ipc.Msg{
		{Type: ipc.TypeReconfBegin, Data: ipc.Settings{
			RefreshInterval: 600, RetryInterval: 300, ExpireInterval: 7200,
		}.Encode()},
		{Type: ipc.TypeDrain},
		{Type: ipc.TypeShowSession, PeerID: 7, ReqID: 42},
	}
	for _, m := range msgs {
		require.NoError(t, a.Send(m))
	}
	for _, want := range msgs {
		got, err := b.Recv()
		require.NoError(t, err)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.PeerID, got.PeerID)
		assert.Equal(t, want.ReqID, got.ReqID)
		assert.Equal(t, want.Data, got.Data)
		assert.Nil(t, got.File)
	}
}

func TestDescriptorPassing(t *testing.T) {
	a, b := connPair(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	descr, err := ipc.EncodeDescription("uplink-1")
	require.NoError(t, err)
	require.NoError(t, a.Send(ipc.Msg{
		Type:   ipc.TypeSessionConn,
		PeerID: 3,
		Data:   descr,
		File:   w,
	}))

	got, err := b.Recv()
	require.NoError(t, err)
	assert.Equal(t, ipc.TypeSessionConn, got.Type)
	require.NotNil(t, got.File)
	defer got.File.Close()

	// The received descriptor refers to the same pipe.
	_, err = got.File.WriteString("ping\n")
	require.NoError(t, err)
	line, err := bufio.NewReader(r).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ping\n", line)
}

func TestDescriptorOnlyOnHandoffTypes(t *testing.T) {
	// A descriptor that arrives alongside a frame of a non-handoff type is
	// not attached to it; it stays queued for the next handoff frame.
	a, b := connPair(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, a.Send(ipc.Msg{Type: ipc.TypeConsumerConn, File: w}))
	require.NoError(t, a.Send(ipc.Msg{Type: ipc.TypeDrain}))

	first, err := b.Recv()
	require.NoError(t, err)
	assert.Equal(t, ipc.TypeConsumerConn, first.Type)
	require.NotNil(t, first.File)
	first.File.Close()

	second, err := b.Recv()
	require.NoError(t, err)
	assert.Equal(t, ipc.TypeDrain, second.Type)
	assert.Nil(t, second.File)
}

func TestRecvAfterClose(t *testing.T) {
	a, b := connPair(t)
	require.NoError(t, a.Compose(ipc.TypeDrain, 0, 0, nil))
	require.NoError(t, a.Close())

	got, err := b.Recv()
	require.NoError(t, err)
	assert.Equal(t, ipc.TypeDrain, got.Type)

	_, err = b.Recv()
	assert.Error(t, err)
}

func TestSendOversizedPayload(t *testing.T) {
	a, _ := connPair(t)
	err := a.Send(ipc.Msg{Type: ipc.TypeAttestation, Data: make([]byte, ipc.MaxPayload+1)})
	assert.Error(t, err)
}

func TestAttestationCodec(t *testing.T) {
	t.Run("ipv4", func(t *testing.T) {
		want := rpki.Attestation{
			Prefix:    netip.MustParsePrefix("10.0.0.0/8"),
			MaxLength: 24,
			OriginAS:  65000,
			Authority: 2,
			Expires:   1234567890,
		}
		got, err := ipc.DecodeAttestation(ipc.EncodeAttestation(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("ipv6", func(t *testing.T) {
		want := rpki.Attestation{
			Prefix:    netip.MustParsePrefix("2001:db8::/32"),
			MaxLength: 48,
			OriginAS:  65010,
			Authority: 1,
		}
		got, err := ipc.DecodeAttestation(ipc.EncodeAttestation(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("bad length", func(t *testing.T) {
		_, err := ipc.DecodeAttestation(make([]byte, ipc.AttestationLen-1))
		assert.Error(t, err)
	})

	t.Run("bad afi", func(t *testing.T) {
		b := ipc.EncodeAttestation(rpki.Attestation{
			Prefix: netip.MustParsePrefix("10.0.0.0/8"),
		})
		b[0] = 9
		_, err := ipc.DecodeAttestation(b)
		assert.Error(t, err)
	})

	t.Run("bad prefix length", func(t *testing.T) {
		b := ipc.EncodeAttestation(rpki.Attestation{
			Prefix: netip.MustParsePrefix("10.0.0.0/8"),
		})
		b[1] = 33
		_, err := ipc.DecodeAttestation(b)
		assert.Error(t, err)
	})
}

func TestProvidersCodec(t *testing.T) {
	providers := []rpki.ProviderEntry{
		{AS: 65002, Family: rpki.FamilyIPv4},
		{AS: 65003, Family: rpki.FamilyBoth},
	}
	data := ipc.EncodeProviders(providers)
	got, err := ipc.DecodeProviders(data, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{65002, 65003}, got)

	_, err = ipc.DecodeProviders(data, 3)
	assert.Error(t, err)
	_, err = ipc.DecodeProviders(data[:7], 2)
	assert.Error(t, err)

	// A count large enough to wrap count*4 in 32-bit arithmetic must
	// still fail the length check instead of being indexed.
	_, err = ipc.DecodeProviders(nil, 1<<30)
	assert.Error(t, err)
	_, err = ipc.DecodeProviders(data, 1<<30|2)
	assert.Error(t, err)
}

func TestFamiliesCodec(t *testing.T) {
	families := []rpki.Family{rpki.FamilyBoth, rpki.FamilyIPv4, rpki.FamilyIPv6}
	data := ipc.EncodeFamilies(families)
	got, err := ipc.DecodeFamilies(data, 3)
	require.NoError(t, err)
	assert.Equal(t, families, got)

	_, err = ipc.DecodeFamilies(data, 2)
	assert.Error(t, err)

	bad := []byte{0, 1, 7}
	_, err = ipc.DecodeFamilies(bad, 3)
	assert.Error(t, err)
}

func TestDescriptionCodec(t *testing.T) {
	data, err := ipc.EncodeDescription("session-east")
	require.NoError(t, err)
	require.Len(t, data, ipc.DescriptionLen)
	got, err := ipc.DecodeDescription(data)
	require.NoError(t, err)
	assert.Equal(t, "session-east", got)

	// The wire field is NUL terminated, so the description must be
	// strictly shorter than the field.
	_, err = ipc.EncodeDescription("0123456789012345678901234567890x")
	assert.Error(t, err)
}

func TestSessionStatusCodec(t *testing.T) {
	want := ipc.SessionStatus{
		Description: "uplink-1",
		State:       "established",
		RxMessages:  17,
		RxBytes:     4096,
		LastEvent:   1700000000,
	}
	got, err := ipc.DecodeSessionStatus(want.Encode())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
