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
	"strings"

	"goarrg.com/debug"
)

// DescriptorSetLayout is a set layout owned by the descriptor collaborator.
// Hash should be a content hash of the layout, when zero the handle is used.
type DescriptorSetLayout struct {
	Handle DescriptorSetLayoutHandle
	Hash   uint64
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutCreateInfo struct {
	Label              string
	SetLayouts         []DescriptorSetLayout
	PushConstantRanges []PushConstantRange
}

type PipelineLayoutRequest struct {
	Label              string
	SetLayouts         []DescriptorSetLayoutHandle
	PushConstantRanges []PushConstantRange
}

// PipelineLayout is reference counted, every pipeline created with it keeps
// the driver object alive after the owner calls Destroy.
type PipelineLayout struct {
	noCopy   noCopy
	dev      *Device
	id       string
	name     string
	handle   PipelineLayoutHandle
	hash     uint64
	implicit bool
	refs     int
	info     PipelineLayoutCreateInfo
}

func (info *PipelineLayoutCreateInfo) validate() error {
	var seen ShaderStage
	for i, r := range info.PushConstantRanges {
		if r.Stages == 0 {
			return debug.Errorf("PushConstantRange [%d] has no stages", i)
		}
		if r.Size == 0 || r.Size%4 != 0 || r.Offset%4 != 0 {
			return debug.Errorf("PushConstantRange [%d] offset [%d] and size [%d] must be non zero multiples of 4", i, r.Offset, r.Size)
		}
		if seen&r.Stages != 0 {
			return debug.Errorf("PushConstantRange [%d]: stages %q already have a push constant range", i, (seen & r.Stages).String())
		}
		seen |= r.Stages
	}
	for i, s := range info.SetLayouts {
		if s.Handle == NullHandle {
			return debug.Errorf("SetLayouts [%d] is null", i)
		}
	}
	return nil
}

func (d *Device) NewPipelineLayout(info PipelineLayoutCreateInfo) (*PipelineLayout, error) {
	if err := info.validate(); err != nil {
		return nil, ErrorInvalidUsage{Err: debug.ErrorWrapf(err, "Failed to create PipelineLayout %q", info.Label)}
	}
	return d.createPipelineLayout(info, false)
}

func (d *Device) createPipelineLayout(info PipelineLayoutCreateInfo, implicit bool) (*PipelineLayout, error) {
	layout := &PipelineLayout{
		dev:      d,
		implicit: implicit,
		refs:     1,
		info: PipelineLayoutCreateInfo{
			Label:              info.Label,
			SetLayouts:         slices.Clone(info.SetLayouts),
			PushConstantRanges: slices.Clone(info.PushConstantRanges),
		},
	}

	request := PipelineLayoutRequest{
		Label:              info.Label,
		SetLayouts:         make([]DescriptorSetLayoutHandle, len(info.SetLayouts)),
		PushConstantRanges: layout.info.PushConstantRanges,
	}

	{
		h := newHasher()
		sb := strings.Builder{}
		h.uint32(uint32(len(info.SetLayouts)))
		for i, s := range info.SetLayouts {
			request.SetLayouts[i] = s.Handle
			if s.Hash != 0 {
				h.uint64(s.Hash)
				sb.WriteString(toHex(s.Hash) + ",")
			} else {
				h.uint64(uint64(s.Handle))
				sb.WriteString(toHex(s.Handle) + ",")
			}
		}
		h.uint32(uint32(len(info.PushConstantRanges)))
		for _, r := range info.PushConstantRanges {
			h.uint32(uint32(r.Stages))
			h.uint32(r.Offset)
			h.uint32(r.Size)
			sb.WriteString(fmt.Sprintf("[%s,%d,%d],", r.Stages.String(), r.Offset, r.Size))
		}
		layout.hash = h.sum()
		layout.name = "[" + strings.TrimSuffix(sb.String(), ",") + "]"
	}

	handle, status := d.driver.CreatePipelineLayout(&request, NullHandle)
	if !status.Succeeded() || handle == NullHandle {
		if handle != NullHandle {
			d.driver.DestroyPipelineLayout(handle, NullHandle)
		}
		instance.logger.EPrintf("Failed to create PipelineLayout %q %s: %s", info.Label, layout.name, status.String())
		return nil, debug.Errorf("Failed to create PipelineLayout %q: %s", info.Label, status.String())
	}
	layout.handle = handle
	layout.id = genID(layout.handle, layout.hash)
	layout.noCopy.init()

	instance.logger.VPrintf("Created PipelineLayout %q %s %s", info.Label, layout.id, layout.name)
	return layout, nil
}

func (l *PipelineLayout) Handle() PipelineLayoutHandle {
	return l.handle
}

func (l *PipelineLayout) Hash() uint64 {
	return l.hash
}

func (l *PipelineLayout) Label() string {
	return l.info.Label
}

func (l *PipelineLayout) retain() error {
	if !l.noCopy.alive() {
		return invalidUsage("PipelineLayout %q is destroyed", l.info.Label)
	}
	l.refs++
	return nil
}

func (l *PipelineLayout) release() {
	if l.refs <= 0 {
		abort("PipelineLayout %q released more often than retained", l.info.Label)
	}
	l.refs--
	if l.refs == 0 {
		instance.logger.VPrintf("Destroying PipelineLayout %q %s", l.info.Label, l.id)
		l.dev.driver.DestroyPipelineLayout(l.handle, NullHandle)
		l.handle = NullHandle
	}
}

// Destroy drops the owner's reference, the driver object lives on until
// every pipeline created with the layout is destroyed.
func (l *PipelineLayout) Destroy() {
	l.noCopy.check()
	if l.implicit {
		abort("Destroy called on the implicit empty PipelineLayout")
	}
	l.noCopy.close()
	l.release()
}

func (l *PipelineLayout) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"id\": %q,", l.id))
	buff.WriteString(fmt.Sprintf("\"name\": %q,", l.name))
	buff.WriteString(fmt.Sprintf("\"label\": %q,", l.info.Label))
	buff.WriteString(fmt.Sprintf("\"implicit\": %t,", l.implicit))
	buff.WriteString(fmt.Sprintf("\"handle\": %q,", toHex(l.handle)))
	buff.WriteString(fmt.Sprintf("\"hash\": %q", toHex(l.hash)))

	buff.WriteString("}")
	return buff.Bytes(), nil
}
