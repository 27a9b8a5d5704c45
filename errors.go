/*
Copyright 2025 The goARRG Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pso

import (
	"fmt"
	"strings"

	"goarrg.com/debug"
)

// ErrorCreationFailed is returned when the driver fails to create a single pipeline.
type ErrorCreationFailed struct {
	BindPoint BindPoint
	Label     string
	Status    Status
	// Dump is only set with diagnostics enabled.
	Dump string
}

func (ErrorCreationFailed) Is(target error) bool {
	_, ok := target.(ErrorCreationFailed)
	return ok
}

func (e ErrorCreationFailed) Error() string {
	msg := fmt.Sprintf("Failed to create %s pipeline %q: %s", e.BindPoint.String(), e.Label, e.Status.String())
	if e.Dump != "" {
		msg += "\n" + e.Dump
	}
	return msg
}

// ErrorBatchFailed is the one error reported for a failed batch commit, no
// pipeline of the batch was created.
type ErrorBatchFailed struct {
	// Batch is the ID of the failed batch.
	Batch     string
	BindPoint BindPoint
	Size      int
	Status    Status
	// Failed lists the indices of requests that came back null.
	Failed []int
	// Released is the number of non null handles destroyed by the commit.
	Released int
	Dump     string
}

func (ErrorBatchFailed) Is(target error) bool {
	_, ok := target.(ErrorBatchFailed)
	return ok
}

func (e ErrorBatchFailed) Error() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Failed to commit %s batch %s of %d requests: %s", e.BindPoint.String(), e.Batch, e.Size, e.Status.String()))
	if len(e.Failed) > 0 {
		sb.WriteString(fmt.Sprintf(", failed requests: %v", e.Failed))
	}
	if e.Released > 0 {
		sb.WriteString(fmt.Sprintf(", released %d created pipelines", e.Released))
	}
	if e.Dump != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Dump)
	}
	return sb.String()
}

// ErrorInvalidUsage reports structural misuse found before any driver call.
type ErrorInvalidUsage struct {
	Err error
}

func invalidUsage(format string, args ...any) error {
	return ErrorInvalidUsage{Err: debug.Errorf(format, args...)}
}

func (ErrorInvalidUsage) Is(target error) bool {
	_, ok := target.(ErrorInvalidUsage)
	return ok
}

func (e ErrorInvalidUsage) Error() string {
	return "Invalid usage: " + e.Err.Error()
}

func (e ErrorInvalidUsage) Unwrap() error {
	return e.Err
}

// ErrorCapabilityUnavailable reports a request for an optional feature the
// device does not have enabled.
type ErrorCapabilityUnavailable struct {
	Capability string
}

func (ErrorCapabilityUnavailable) Is(target error) bool {
	_, ok := target.(ErrorCapabilityUnavailable)
	return ok
}

func (e ErrorCapabilityUnavailable) Error() string {
	return fmt.Sprintf("Capability %q is not enabled on this device", e.Capability)
}

// ErrorStorageExhausted is returned once a batch can not take more requests
// without moving storage that pending requests point into.
type ErrorStorageExhausted struct {
	Capacity int
}

func (ErrorStorageExhausted) Is(target error) bool {
	_, ok := target.(ErrorStorageExhausted)
	return ok
}

func (e ErrorStorageExhausted) Error() string {
	return fmt.Sprintf("Batch storage exhausted at %d requests, commit or reset the batch", e.Capacity)
}
