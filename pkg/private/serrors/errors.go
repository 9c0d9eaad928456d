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

// Package serrors provides enhanced errors. Errors created with serrors
// carry additional log context in the form of key-value pairs, and compose
// with the standard library errors package: for any error returned here,
// errors.Is(err, cause) holds for every wrapped cause.
package serrors

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ctxPair is one item of log context attached to an error.
type ctxPair struct {
	Key   string
	Value interface{}
}

// basicError implements error with an optional cause and log context.
type basicError struct {
	msg   string
	ctx   []ctxPair
	cause error
}

func (e basicError) Error() string {
	var buf bytes.Buffer
	buf.WriteString(e.msg)
	if len(e.ctx) != 0 {
		fmt.Fprint(&buf, " {")
		for i, p := range e.ctx {
			if i != 0 {
				fmt.Fprint(&buf, "; ")
			}
			fmt.Fprintf(&buf, "%s=%v", p.Key, p.Value)
		}
		fmt.Fprint(&buf, "}")
	}
	if e.cause != nil {
		fmt.Fprintf(&buf, ": %s", e.cause)
	}
	return buf.String()
}

func (e basicError) Unwrap() error {
	return e.cause
}

// MarshalLogObject implements zapcore.ObjectMarshaler for a nicer log
// representation.
func (e basicError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("msg", e.msg)
	if e.cause != nil {
		if m, ok := e.cause.(zapcore.ObjectMarshaler); ok {
			if err := enc.AddObject("cause", m); err != nil {
				return err
			}
		} else {
			enc.AddString("cause", e.cause.Error())
		}
	}
	for _, pair := range e.ctx {
		zap.Any(pair.Key, pair.Value).AddTo(enc)
	}
	return nil
}

func mkContext(errCtx []interface{}) []ctxPair {
	np := len(errCtx) / 2
	ctx := make([]ctxPair, np)
	for i := 0; i < np; i++ {
		ctx[i] = ctxPair{Key: fmt.Sprint(errCtx[2*i]), Value: errCtx[2*i+1]}
	}
	sort.Slice(ctx, func(a, b int) bool {
		return ctx[a].Key < ctx[b].Key
	})
	return ctx
}

// New creates a new error with the given message and context.
func New(msg string, errCtx ...interface{}) error {
	if len(errCtx) == 0 {
		return errors.New(msg)
	}
	return &basicError{
		msg: msg,
		ctx: mkContext(errCtx),
	}
}

// Wrap returns an error with the given message that wraps the cause and
// carries the additional context. The returned error supports Is; Is(cause)
// returns true.
func Wrap(msg string, cause error, errCtx ...interface{}) error {
	return basicError{
		msg:   msg,
		ctx:   mkContext(errCtx),
		cause: cause,
	}
}

// Join returns an error that combines the base error with a cause and the
// given context. Is(err) and, if cause is non-nil, Is(cause) return true.
// If both err and cause are nil, Join returns nil.
func Join(err, cause error, errCtx ...interface{}) error {
	if err == nil && cause == nil {
		return nil
	}
	return joinedError{
		error: err,
		ctx:   mkContext(errCtx),
		cause: cause,
	}
}

// joinedError aggregates context and a cause around an existing base error,
// typically a sentinel.
type joinedError struct {
	error error
	ctx   []ctxPair
	cause error
}

func (e joinedError) Error() string {
	b := basicError{msg: e.error.Error(), ctx: e.ctx, cause: e.cause}
	return b.Error()
}

func (e joinedError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.error}
	}
	return []error{e.error, e.cause}
}

// MarshalLogObject implements zapcore.ObjectMarshaler. The base error is
// treated as a most generic error.
func (e joinedError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	b := basicError{msg: e.error.Error(), ctx: e.ctx, cause: e.cause}
	return b.MarshalLogObject(enc)
}

// IsTimeout returns whether err is or is caused by a timeout error.
func IsTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// IsTemporary returns whether err is or is caused by a temporary error.
func IsTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}
