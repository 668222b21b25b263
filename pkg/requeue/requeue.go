// Copyright 2025 The Kube Resource Orchestrator Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"). You may
// not use this file except in compliance with the License. A copy of the
// License is located at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// or in the "license" file accompanying this file. This file is distributed
// on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either
// express or implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package requeue holds the error markers providers use to tell the
// executor whether a failed operation is worth retrying.
package requeue

import (
	"errors"
	"time"
)

// None marks err as permanent: the executor fails the operation even
// when retries are left, e.g. for a parameter the cloud API rejects.
func None(err error) *NoRequeue {
	return &NoRequeue{err: err}
}

// Needed marks err as transient. The executor retries with its own delay.
func Needed(err error) *RequeueNeeded {
	return &RequeueNeeded{err: err}
}

// NeededAfter marks err as transient and asks for a retry after d.
// Polling readiness usually suits better than a fixed delay.
func NeededAfter(err error, d time.Duration) *RequeueNeeded {
	return &RequeueNeeded{err: err, after: d}
}

// NoRequeue is a permanent failure.
type NoRequeue struct {
	err error
}

func (e *NoRequeue) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *NoRequeue) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// RequeueNeeded is a failure expected to go away, e.g. a throttled call
// or a conflicting operation still in progress.
type RequeueNeeded struct {
	err   error
	after time.Duration
}

func (e *RequeueNeeded) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *RequeueNeeded) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// After is the delay requested before the retry, zero when the executor
// should pick.
func (e *RequeueNeeded) After() time.Duration {
	if e == nil {
		return 0
	}
	return e.after
}

var (
	_ error = &NoRequeue{}
	_ error = &RequeueNeeded{}
)

// Retryable reports whether err, or an error it wraps, asks for a retry,
// and the delay requested, if any. The outermost marker wins.
func Retryable(err error) (bool, time.Duration) {
	for ; err != nil; err = errors.Unwrap(err) {
		switch e := err.(type) {
		case *NoRequeue:
			return false, 0
		case *RequeueNeeded:
			return true, e.After()
		}
	}
	return false, 0
}
