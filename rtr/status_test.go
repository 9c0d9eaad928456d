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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routeguard/routeguard/pkg/ipc"
)

func TestStatusRendering(t *testing.T) {
	reg := newFakeRegistry()
	reg.sessions[1] = &fakeSession{id: 1, status: ipc.SessionStatus{
		Description: "uplink-1",
		State:       "established",
		RxMessages:  12,
		RxBytes:     4096,
		LastEvent:   1700000000,
	}}
	e := &Engine{Sessions: reg}

	var sb strings.Builder
	e.Status(&sb)
	out := sb.String()
	assert.Contains(t, out, "SESSIONS: 1")
	assert.Contains(t, out, "uplink-1")
	assert.Contains(t, out, "established")
	assert.Contains(t, out, "2023-11-14T22:13:20Z")
}

func TestStatusRenderingEmpty(t *testing.T) {
	e := &Engine{Sessions: newFakeRegistry()}
	var sb strings.Builder
	e.Status(&sb)
	assert.Contains(t, sb.String(), "SESSIONS: 0")
}
