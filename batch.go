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
	"weak"

	"github.com/google/uuid"

	"goarrg.com/rhi/pso/internal/container"
)

type (
	GraphicsBatch   = Batch[GraphicsPipelineCreateInfo, GraphicsPipelineRequest]
	ComputeBatch    = Batch[ComputePipelineCreateInfo, ComputePipelineRequest]
	RayTracingBatch = Batch[RayTracingPipelineCreateInfo, RayTracingPipelineRequest]
)

// Batch accumulates pipeline requests and creates all of them with one
// driver call on Commit. Every request is copied into storage that never
// moves until the batch is committed or reset, so the request structs
// handed to the driver may point into it.
type Batch[I any, R any] struct {
	noCopy    noCopy
	id        string
	dev       *Device
	kind      pipelineKind[I, R]
	items     *container.Arena[pending[I]]
	exhausted bool

	requests []R
	handles  []PipelineHandle
}

func newBatch[I, R any](d *Device, kind pipelineKind[I, R]) *Batch[I, R] {
	d.noCopy.check()
	b := &Batch[I, R]{
		id:    uuid.Must(uuid.NewV7()).String(),
		dev:   d,
		kind:  kind,
		items: container.NewArena[pending[I]](d.config.batchChunkSize, d.config.maxBatchSize),
	}
	b.noCopy.init()
	return b
}

// AddRequest validates info, copies it into the batch and returns its
// index. Once the batch is full every call fails with
// ErrorStorageExhausted until Commit or Reset.
func (b *Batch[I, R]) AddRequest(info I) (int, error) {
	b.noCopy.check()

	if b.exhausted || b.items.Full() {
		if !b.exhausted {
			instance.logger.EPrintf("%s batch %s storage exhausted at %d requests", b.kind.bindPoint().String(), b.id, b.items.Limit())
		}
		b.exhausted = true
		return -1, ErrorStorageExhausted{Capacity: b.items.Limit()}
	}

	index, p, ok := b.items.Alloc()
	if !ok {
		b.exhausted = true
		return -1, ErrorStorageExhausted{Capacity: b.items.Limit()}
	}
	if err := preparePending(b.dev, b.kind, p, info, index, b.items.At); err != nil {
		b.items.Pop()
		instance.logger.EPrintf("Batch %s rejected %s request [%d]: %s", b.id, b.kind.bindPoint().String(), index, err)
		return -1, err
	}
	return index, nil
}

// ID names the batch in logs and in ErrorBatchFailed, IDs sort by creation time.
func (b *Batch[I, R]) ID() string {
	return b.id
}

func (b *Batch[I, R]) Len() int {
	return b.items.Len()
}

// Fingerprints returns the fingerprints of request i, they are final as
// soon as AddRequest returns.
func (b *Batch[I, R]) Fingerprints(i int) Fingerprints {
	return b.at(i).fingerprints
}

// Info returns the batch's own copy of request i. The address stays the
// same until Commit or Reset.
func (b *Batch[I, R]) Info(i int) *I {
	return &b.at(i).info
}

func (b *Batch[I, R]) at(i int) *pending[I] {
	b.noCopy.check()
	if i < 0 || i >= b.items.Len() {
		abort("Batch %s: request index [%d] out of range, have [%d] requests", b.id, i, b.items.Len())
	}
	return b.items.At(i)
}

// Commit creates every pending pipeline with one driver call and returns
// them in insertion order. If the driver reports failure or any handle
// comes back null, every handle it did create is destroyed and one
// ErrorBatchFailed is returned. The batch is empty afterwards either way,
// except for errors found before the driver call.
func (b *Batch[I, R]) Commit(opts CreateOptions) ([]*Pipeline, error) {
	b.noCopy.check()

	n := b.items.Len()
	if n == 0 {
		return nil, nil
	}
	var library LibrarySubsetFlags
	if opts.Library != nil {
		if err := b.dev.checkLibraryOption(b.kind.bindPoint(), opts.Library); err != nil {
			return nil, err
		}
		library = opts.Library.subsets()
	}
	for i, p := range b.items.All() {
		if err := checkFragmentsAlive(p, i, b.kind.common(&p.info).Label); err != nil {
			return nil, err
		}
		if missing := p.missing &^ (p.store.linkedSubsets() | library); missing != 0 {
			return nil, invalidUsage("Request [%d] %q: incomplete graphics pipeline, missing %s", i, b.kind.common(&p.info).Label, missing.String())
		}
	}
	defer b.Reset()

	b.requests = growSlice(b.requests[:0], n)[:n]
	b.handles = growSlice(b.handles[:0], n)[:n]
	clear(b.handles)

	for i, p := range b.items.All() {
		if opts.Library != nil {
			b.dev.linkLibrary(&p.extensions, &p.store, opts.Library, p.defined)
		}
		b.requests[i] = b.kind.request(p, requestCommon(p, b.kind.common(&p.info)))
	}

	instance.logger.VPrintf("Batch %s: creating %d %s pipelines", b.id, n, b.kind.bindPoint().String())
	status := b.kind.create(b.dev, &opts, b.requests, b.handles)

	var failed []int
	for i, h := range b.handles {
		if h == NullHandle {
			failed = append(failed, i)
		}
	}

	if !status.Succeeded() || len(failed) > 0 {
		err := ErrorBatchFailed{
			Batch:     b.id,
			BindPoint: b.kind.bindPoint(),
			Size:      n,
			Status:    status,
			Failed:    failed,
		}
		if status.Succeeded() {
			err.Status = StatusErrorUnknown
		}
		if b.dev.config.diagnostics {
			all := make([]*pending[I], 0, n)
			for _, p := range b.items.All() {
				all = append(all, p)
			}
			err.Dump = dumpPending(b.kind, all, b.handles)
		}
		for _, h := range b.handles {
			if h != NullHandle {
				b.dev.driver.DestroyPipeline(h, opts.Allocator)
				err.Released++
			}
		}
		instance.logger.EPrintf("%s", err.Error())
		return nil, err
	}

	pipelines := make([]*Pipeline, n)
	for i, p := range b.items.All() {
		pipelines[i] = adoptPipeline(b.dev, b.kind.bindPoint(), b.handles[i], opts.Allocator, p, b.kind.common(&p.info), b.kind.stages(&p.info))
		if p.baseIndex >= 0 {
			pipelines[i].base = weak.Make(pipelines[p.baseIndex])
		}
	}
	return pipelines, nil
}

// Reset drops every pending request.
func (b *Batch[I, R]) Reset() {
	b.noCopy.check()
	for _, p := range b.items.All() {
		if p.layout != nil {
			p.layout.release()
			p.layout = nil
		}
	}
	b.items.Reset()
	clear(b.requests)
	b.requests = b.requests[:0]
	b.exhausted = false
}
