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

package serrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routeguard/routeguard/pkg/private/serrors"
)

func TestNew(t *testing.T) {
	err := serrors.New("failure")
	assert.Equal(t, "failure", err.Error())

	// Context keys render sorted.
	withCtx := serrors.New("failure", "b", 2, "a", 1)
	assert.Equal(t, "failure {a=1; b=2}", withCtx.Error())
}

func TestWrap(t *testing.T) {
	cause := serrors.New("cause")
	err := serrors.Wrap("operation failed", cause, "key", "value")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "operation failed {key=value}: cause", err.Error())
}

func TestJoin(t *testing.T) {
	base := errors.New("base")
	cause := errors.New("cause")

	err := serrors.Join(base, cause, "key", 7)
	assert.ErrorIs(t, err, base)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "base {key=7}: cause", err.Error())

	assert.NoError(t, serrors.Join(nil, nil))
	assert.ErrorIs(t, serrors.Join(base, nil), base)
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }

func (timeoutErr) Timeout() bool { return true }

func (timeoutErr) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	assert.True(t, serrors.IsTimeout(serrors.Wrap("read failed", timeoutErr{})))
	assert.False(t, serrors.IsTimeout(serrors.New("read failed")))
}

func TestIsTemporary(t *testing.T) {
	assert.True(t, serrors.IsTemporary(serrors.Wrap("read failed", timeoutErr{})))
	assert.False(t, serrors.IsTemporary(serrors.New("read failed")))
}
