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
	"bytes"
	"fmt"
	"slices"
	"weak"
)

// PipelineCreateInfo holds the fields shared by every pipeline kind.
type PipelineCreateInfo struct {
	Label string
	Flags PipelineCreateFlags
	// Layout falls back to the device's implicit empty layout when nil.
	Layout *PipelineLayout

	// Base is an acceleration hint for derivative pipelines, it is never
	// owned and may be destroyed before the pipeline is created.
	Base *Pipeline
	// BaseIndex refers to an earlier request of the same batch instead of Base.
	BaseIndex *int

	Extensions PipelineExtensions
}

func (info *PipelineCreateInfo) clone() {
	if info.BaseIndex != nil {
		i := *info.BaseIndex
		info.BaseIndex = &i
	}
	if info.Extensions.CompilerControl != nil {
		c := *info.Extensions.CompilerControl
		info.Extensions.CompilerControl = &c
	}
	if info.Extensions.Robustness != nil {
		r := *info.Extensions.Robustness
		info.Extensions.Robustness = &r
	}
	info.Extensions.Libraries = slices.Clone(info.Extensions.Libraries)
}

// RequestCommon is the driver facing form of PipelineCreateInfo.
type RequestCommon struct {
	Label             string
	Flags             PipelineCreateFlags
	Layout            PipelineLayoutHandle
	BasePipeline      PipelineHandle
	BasePipelineIndex int32
	Extensions        RequestExtensions
}

type CreateOptions struct {
	Cache PipelineCacheHandle
	// Library links every fragment of the library into each pipeline,
	// skipping subsets a request already links itself.
	Library   *PipelineLibrary
	Allocator HostAllocator
	// Deferred is passed through to drivers that accept it, it is never
	// polled or joined here.
	Deferred DeferredOperationHandle
}

type Pipeline struct {
	noCopy       noCopy
	dev          *Device
	label        string
	bindPoint    BindPoint
	handle       PipelineHandle
	allocator    HostAllocator
	layout       *PipelineLayout
	base         weak.Pointer[Pipeline]
	flags        PipelineCreateFlags
	fingerprints Fingerprints
	feedback     *CreationFeedbackRecord
	stages       []ShaderStage
	links        []*LibraryFragment
}

// adoptPipeline wraps a handle the driver already created. The layout
// reference held by p moves to the new Pipeline.
func adoptPipeline[I any](d *Device, bindPoint BindPoint, handle PipelineHandle, allocator HostAllocator, p *pending[I], common *PipelineCreateInfo, stages []ShaderStageInfo) *Pipeline {
	pipeline := &Pipeline{
		dev:          d,
		label:        common.Label,
		bindPoint:    bindPoint,
		handle:       handle,
		allocator:    allocator,
		layout:       p.layout,
		base:         p.base,
		flags:        common.Flags,
		fingerprints: p.fingerprints,
		stages:       make([]ShaderStage, len(stages)),
		links:        slices.Clone(p.store.fragments),
	}
	for i := range stages {
		pipeline.stages[i] = stages[i].Stage
	}
	if p.extensions.Feedback != nil {
		feedback := p.extensions.Feedback.clone()
		pipeline.feedback = &feedback
	}
	pipeline.noCopy.init()
	p.layout = nil
	return pipeline
}

func (p *Pipeline) Handle() PipelineHandle {
	return p.handle
}

func (p *Pipeline) Label() string {
	return p.label
}

func (p *Pipeline) BindPoint() BindPoint {
	return p.bindPoint
}

func (p *Pipeline) Flags() PipelineCreateFlags {
	return p.flags
}

func (p *Pipeline) Layout() *PipelineLayout {
	return p.layout
}

func (p *Pipeline) Stages() []ShaderStage {
	return slices.Clone(p.stages)
}

// Base returns the pipeline this one was derived from, or nil if there was
// none or it has been destroyed since.
func (p *Pipeline) Base() *Pipeline {
	b := p.base.Value()
	if b == nil || !b.noCopy.alive() {
		return nil
	}
	return b
}

func (p *Pipeline) Fingerprint() uint64 {
	return p.fingerprints.Fingerprint
}

func (p *Pipeline) StateFingerprint() uint64 {
	return p.fingerprints.State
}

func (p *Pipeline) Fingerprints() Fingerprints {
	return p.fingerprints
}

// CreationFeedback returns the driver reported feedback, ok is false when
// it was not requested or the feature is disabled.
func (p *Pipeline) CreationFeedback() (pipeline CreationFeedback, stages []CreationFeedback, ok bool) {
	if p.feedback == nil {
		return CreationFeedback{}, nil, false
	}
	return p.feedback.Pipeline, slices.Clone(p.feedback.Stages), true
}

// Links returns the library fragments linked into the pipeline, the owning
// library must outlive the pipeline.
func (p *Pipeline) Links() []*LibraryFragment {
	return slices.Clone(p.links)
}

func (p *Pipeline) Destroy() {
	p.noCopy.check()
	instance.logger.VPrintf("Destroying %s pipeline %q %s", p.bindPoint.String(), p.label, toHex(p.handle))
	p.dev.driver.DestroyPipeline(p.handle, p.allocator)
	p.layout.release()
	p.layout = nil
	p.handle = NullHandle
	p.noCopy.close()
}

func (p *Pipeline) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"label\": %q,", p.label))
	buff.WriteString(fmt.Sprintf("\"bindPoint\": %q,", p.bindPoint.String()))
	buff.WriteString(fmt.Sprintf("\"handle\": %q,", toHex(p.handle)))
	buff.WriteString(fmt.Sprintf("\"flags\": %q,", p.flags.String()))
	buff.WriteString(fmt.Sprintf("\"fingerprint\": %q,", toHex(p.fingerprints.Fingerprint)))
	buff.WriteString(fmt.Sprintf("\"stateFingerprint\": %q", toHex(p.fingerprints.State)))

	buff.WriteString("}")
	return buff.Bytes(), nil
}

// pending is one not yet created pipeline. Inside a batch it lives in
// stable storage, every pointer in its RequestExtensions points into store.
type pending[I any] struct {
	info         I
	layout       *PipelineLayout
	base         weak.Pointer[Pipeline]
	baseIndex    int
	extensions   RequestExtensions
	store        extensionStorage
	fingerprints Fingerprints

	// defined are the library subsets the request describes itself, missing
	// are required subsets still to be linked at create time.
	defined LibrarySubsetFlags
	missing LibrarySubsetFlags
}

// pipelineKind is implemented once per bind point. It owns everything kind
// specific so pending storage and commit stay generic.
type pipelineKind[I any, R any] interface {
	bindPoint() BindPoint
	common(info *I) *PipelineCreateInfo
	stages(info *I) []ShaderStageInfo
	librarySubsets(info *I) LibrarySubsetFlags
	// prepare validates info and deep copies it in place, the returned input
	// has every kind specific hash filled in.
	prepare(d *Device, info *I) (FingerprintInput, error)
	request(p *pending[I], common RequestCommon) R
	create(d *Device, opts *CreateOptions, requests []R, pipelines []PipelineHandle) Status
}

// preparePending fills p from info. earlier resolves BaseIndex, it is nil
// outside of a batch. On error nothing is retained.
func preparePending[I, R any](d *Device, kind pipelineKind[I, R], p *pending[I], info I, index int, earlier func(int) *pending[I]) error {
	p.info = info
	p.baseIndex = -1

	input, err := kind.prepare(d, &p.info)
	if err != nil {
		return err
	}
	common := kind.common(&p.info)
	common.clone()

	switch {
	case common.Base != nil && common.BaseIndex != nil:
		return invalidUsage("%q: Base and BaseIndex are mutually exclusive", common.Label)

	case common.Base != nil:
		if !common.Base.noCopy.alive() {
			return invalidUsage("%q: Base pipeline is destroyed", common.Label)
		}
		if common.Base.dev != d {
			return invalidUsage("%q: Base pipeline %q belongs to a different device", common.Label, common.Base.label)
		}
		if common.Base.bindPoint != kind.bindPoint() {
			return invalidUsage("%q: Base pipeline is a %s pipeline", common.Label, common.Base.bindPoint.String())
		}
		if !hasBits(common.Base.flags, PipelineCreateAllowDerivatives) {
			return invalidUsage("%q: Base pipeline %q was not created with AllowDerivatives", common.Label, common.Base.label)
		}
		if !hasBits(common.Flags, PipelineCreateDerivative) {
			return invalidUsage("%q: Base pipeline given without the Derivative flag", common.Label)
		}
		p.base = weak.Make(common.Base)
		// the weak pointer is the only reference kept
		common.Base = nil

	case common.BaseIndex != nil:
		i := *common.BaseIndex
		if earlier == nil {
			return invalidUsage("%q: BaseIndex is only valid inside a batch", common.Label)
		}
		if i < 0 || i >= index {
			return invalidUsage("%q: BaseIndex [%d] must refer to an earlier request, have [%d] requests", common.Label, i, index)
		}
		if !hasBits(kind.common(&earlier(i).info).Flags, PipelineCreateAllowDerivatives) {
			return invalidUsage("%q: BaseIndex [%d] request was not created with AllowDerivatives", common.Label, i)
		}
		if !hasBits(common.Flags, PipelineCreateDerivative) {
			return invalidUsage("%q: BaseIndex given without the Derivative flag", common.Label)
		}
		p.baseIndex = i
	}

	extensions, extensionHash, hasExtensionHash, err := d.resolveExtensions(kind.bindPoint(), &common.Extensions, len(kind.stages(&p.info)), &p.store)
	if err != nil {
		return err
	}
	p.extensions = extensions

	if kind.bindPoint() == BindPointGraphics {
		p.defined = kind.librarySubsets(&p.info)
		linked := p.store.linkedSubsets()
		if overlap := p.defined & linked; overlap != 0 {
			return invalidUsage("%q: linked library fragments provide %s which the request also describes", common.Label, overlap.String())
		}
		p.missing = librarySubsetsRequired &^ (p.defined | linked)
		if p.missing != 0 && !d.config.features.PipelineLibrary {
			return invalidUsage("%q: incomplete graphics pipeline, missing %s", common.Label, p.missing.String())
		}
	}

	layout, err := d.resolveLayout(common.Layout)
	if err != nil {
		return err
	}
	p.layout = layout

	input.BindPoint = kind.bindPoint()
	input.Flags = common.Flags
	input.Layout = layout.hash
	input.HasExtensions = hasExtensionHash
	input.Extensions = extensionHash
	p.fingerprints = ComputeFingerprints(input)
	return nil
}

// requestCommon materializes the shared request fields. A base that has
// been destroyed since the request was added is dropped, it only ever was
// a hint.
func requestCommon[I any](p *pending[I], common *PipelineCreateInfo) RequestCommon {
	r := RequestCommon{
		Label:             common.Label,
		Flags:             common.Flags,
		Layout:            p.layout.handle,
		BasePipelineIndex: -1,
		Extensions:        p.extensions,
	}
	if p.baseIndex >= 0 {
		r.BasePipelineIndex = int32(p.baseIndex)
	} else if base := p.base.Value(); base != nil && base.noCopy.alive() {
		r.BasePipeline = base.handle
	} else if hasBits(r.Flags, PipelineCreateDerivative) {
		instance.logger.VPrintf("%q: base pipeline was destroyed, creating without it", common.Label)
		r.Flags &^= PipelineCreateDerivative
	}
	return r
}

// createSingle is the single pipeline path, exactly one driver call.
func createSingle[I, R any](d *Device, kind pipelineKind[I, R], info I, opts CreateOptions) (*Pipeline, error) {
	d.noCopy.check()
	p := &pending[I]{}
	if err := preparePending(d, kind, p, info, 0, nil); err != nil {
		return nil, err
	}
	common := kind.common(&p.info)
	if err := checkFragmentsAlive(p, 0, common.Label); err != nil {
		p.layout.release()
		return nil, err
	}
	if opts.Library != nil {
		if err := d.checkLibraryOption(kind.bindPoint(), opts.Library); err != nil {
			p.layout.release()
			return nil, err
		}
		d.linkLibrary(&p.extensions, &p.store, opts.Library, p.defined)
	}
	if err := checkLinked(p, 0); err != nil {
		p.layout.release()
		return nil, err
	}

	requests := []R{kind.request(p, requestCommon(p, common))}
	handles := []PipelineHandle{NullHandle}
	instance.logger.VPrintf("Creating %s pipeline %q", kind.bindPoint().String(), common.Label)
	status := kind.create(d, &opts, requests, handles)

	if !status.Succeeded() || handles[0] == NullHandle {
		if handles[0] != NullHandle {
			d.driver.DestroyPipeline(handles[0], opts.Allocator)
		}
		if status.Succeeded() {
			status = StatusErrorUnknown
		}
		err := ErrorCreationFailed{BindPoint: kind.bindPoint(), Label: common.Label, Status: status}
		if d.config.diagnostics {
			err.Dump = dumpPending(kind, []*pending[I]{p}, handles)
		}
		p.layout.release()
		instance.logger.EPrintf("%s", err.Error())
		return nil, err
	}

	return adoptPipeline(d, kind.bindPoint(), handles[0], opts.Allocator, p, common, kind.stages(&p.info)), nil
}

func (d *Device) checkLibraryOption(bindPoint BindPoint, l *PipelineLibrary) error {
	if !d.config.features.PipelineLibrary {
		return ErrorCapabilityUnavailable{Capability: "PipelineLibrary"}
	}
	if bindPoint != BindPointGraphics {
		return invalidUsage("Library links are only valid for graphics pipelines, have: %s", bindPoint.String())
	}
	if !l.noCopy.alive() {
		return invalidUsage("PipelineLibrary %q is destroyed", l.label)
	}
	if l.dev != d {
		return invalidUsage("PipelineLibrary %q belongs to a different device", l.label)
	}
	return nil
}

// checkFragmentsAlive reports a request linking a fragment whose library
// was destroyed after the request was prepared.
func checkFragmentsAlive[I any](p *pending[I], index int, label string) error {
	for _, f := range p.store.fragments {
		if !f.alive() {
			return invalidUsage("Request [%d] %q: linked %s fragment %q is destroyed", index, label, f.subset.String(), f.label)
		}
	}
	return nil
}

// checkLinked reports a request whose required library subsets are still
// missing after every link is resolved.
func checkLinked[I any](p *pending[I], index int) error {
	if missing := p.missing &^ p.store.linkedSubsets(); missing != 0 {
		return invalidUsage("Request [%d]: incomplete graphics pipeline, missing %s", index, missing.String())
	}
	return nil
}
