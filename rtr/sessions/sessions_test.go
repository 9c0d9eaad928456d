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

package sessions_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/routeguard/routeguard/pkg/ipc"
	"github.com/routeguard/routeguard/rtr/sessions"
)

// transportPair builds a connected unix socketpair: one end as a handoff
// file for Attach, the other as a plain file to drive the session with.
func transportPair(t *testing.T) (handoff, far *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	handoff = os.NewFile(uintptr(fds[0]), "handoff")
	far = os.NewFile(uintptr(fds[1]), "far")
	t.Cleanup(func() { far.Close() })
	return handoff, far
}

func waitReady(t *testing.T, r *sessions.Registry, want uint32) {
	t.Helper()
	select {
	case got := <-r.Ready():
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no readiness event")
	}
}

type recordingHandler struct {
	consumed [][]byte
}

func (h *recordingHandler) Consume(ctx context.Context, data []byte) error {
	h.consumed = append(h.consumed, data)
	return nil
}

func TestCreateAndLookup(t *testing.T) {
	r := sessions.NewRegistry(nil)
	defer r.Close()

	_, ok := r.Lookup(1)
	assert.False(t, ok)

	s := r.Create(1, "uplink-1")
	got, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, s, got)

	status := s.Status()
	assert.Equal(t, "uplink-1", status.Description)
	assert.Equal(t, "awaiting socket", status.State)
	assert.Zero(t, status.RxMessages)
}

func TestMergeConfig(t *testing.T) {
	r := sessions.NewRegistry(nil)
	defer r.Close()

	kept := r.Create(1, "kept")
	r.Create(2, "dropped")

	kept.Keep()
	r.MergeConfig()

	_, ok := r.Lookup(1)
	assert.True(t, ok)
	_, ok = r.Lookup(2)
	assert.False(t, ok)

	// The kept mark does not carry over; an unmarked session is released
	// by the next pass.
	r.MergeConfig()
	_, ok = r.Lookup(1)
	assert.False(t, ok)
}

func TestAllSorted(t *testing.T) {
	r := sessions.NewRegistry(nil)
	defer r.Close()

	for _, id := range []uint32{9, 2, 5} {
		r.Create(id, "")
	}
	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, uint32(2), all[0].ID())
	assert.Equal(t, uint32(5), all[1].ID())
	assert.Equal(t, uint32(9), all[2].ID())
}

func TestAttachAndProcess(t *testing.T) {
	handler := &recordingHandler{}
	r := sessions.NewRegistry(func(uint32) sessions.Handler { return handler })
	defer r.Close()

	s := r.Create(3, "uplink-1")
	handoff, far := transportPair(t)
	s.Attach(handoff)

	assert.Equal(t, "established", s.Status().State)

	_, err := far.WriteString("hello")
	require.NoError(t, err)
	waitReady(t, r, 3)

	require.NoError(t, s.Process(context.Background()))
	require.Len(t, handler.consumed, 1)
	assert.Equal(t, []byte("hello"), handler.consumed[0])

	status := s.Status()
	assert.Equal(t, uint64(1), status.RxMessages)
	assert.Equal(t, uint64(5), status.RxBytes)
	assert.NotZero(t, status.LastEvent)
}

func TestTransportLoss(t *testing.T) {
	r := sessions.NewRegistry(nil)
	defer r.Close()

	s := r.Create(4, "")
	handoff, far := transportPair(t)
	s.Attach(handoff)

	require.NoError(t, far.Close())
	waitReady(t, r, 4)
	assert.Equal(t, "closed", s.Status().State)
}

func TestCreateReplacesExisting(t *testing.T) {
	r := sessions.NewRegistry(nil)
	defer r.Close()

	old := r.Create(6, "old")
	handoff, _ := transportPair(t)
	old.Attach(handoff)

	replacement := r.Create(6, "new")
	got, ok := r.Lookup(6)
	require.True(t, ok)
	assert.Same(t, replacement, got)
	assert.Equal(t, "closed", old.Status().State)
}

func TestStatusWireRoundtrip(t *testing.T) {
	// Every state string must survive the fixed-length wire encoding
	// untruncated, in each lifecycle state.
	r := sessions.NewRegistry(nil)
	defer r.Close()

	s := r.Create(8, "uplink-1")
	assertRoundtrip := func() {
		t.Helper()
		st := s.Status()
		got, err := ipc.DecodeSessionStatus(st.Encode())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	assertRoundtrip()

	handoff, far := transportPair(t)
	s.Attach(handoff)
	assertRoundtrip()

	require.NoError(t, far.Close())
	waitReady(t, r, 8)
	assertRoundtrip()
}

func TestProcessWithoutHandlerDiscards(t *testing.T) {
	r := sessions.NewRegistry(nil)
	defer r.Close()

	s := r.Create(7, "")
	handoff, far := transportPair(t)
	s.Attach(handoff)

	_, err := far.WriteString("data")
	require.NoError(t, err)
	waitReady(t, r, 7)

	// The default handler discards after accounting.
	require.NoError(t, s.Process(context.Background()))
	assert.Equal(t, uint64(4), s.Status().RxBytes)
}
