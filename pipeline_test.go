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

package pso_test

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goarrg.com/rhi/pso"
)

func TestSinglePipeline(t *testing.T) {
	d, drv := newDevice(t, pso.Features{})

	drv.OnGraphics = func(requests []pso.GraphicsPipelineRequest) {
		require.Len(t, requests, 1)
		assert.Equal(t, "single", requests[0].Label)
		require.Len(t, requests[0].Stages, 2)
		assert.Equal(t, vertexModule.Code(), requests[0].Stages[0].Code)
		assert.Equal(t, "fs_main", requests[0].Stages[1].EntryPoint)
	}
	p, err := d.NewGraphicsPipeline(graphicsInfo("single"), pso.CreateOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, drv.Calls().Graphics)
	assert.Equal(t, []pso.PipelineHandle{p.Handle()}, drv.Live())
	assert.Equal(t, "single", p.Label())
	assert.NotZero(t, p.Fingerprint())
	assert.NotZero(t, p.StateFingerprint())
	assert.Nil(t, p.Base())

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(jsonString(t, p)), &decoded))
	assert.Equal(t, "single", decoded["label"])
	assert.Equal(t, "Graphics", decoded["bindPoint"])

	p.Destroy()
	assert.Empty(t, drv.Live())
	assert.Equal(t, 1, drv.Calls().DestroyPipeline)
}

func jsonString(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestSinglePipelineFailure(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status pso.Status
		null   bool
		want   pso.Status
	}{
		{"driver failure", pso.StatusErrorInvalidShader, false, pso.StatusErrorInvalidShader},
		{"driver failure with null handle", pso.StatusErrorOutOfHostMemory, true, pso.StatusErrorOutOfHostMemory},
		{"null handle on success", pso.StatusSuccess, true, pso.StatusErrorUnknown},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, drv := newDevice(t, pso.Features{}, func(c *pso.Config) {
				c.Diagnostics = true
			})
			drv.Status = tc.status
			if tc.null {
				drv.NullAt = []int{0}
			}

			p, err := d.NewComputePipeline(computeInfo("failing"), pso.CreateOptions{})
			assert.Nil(t, p)
			require.ErrorIs(t, err, pso.ErrorCreationFailed{})
			assert.NotErrorIs(t, err, pso.ErrorBatchFailed{})

			var failed pso.ErrorCreationFailed
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, tc.want, failed.Status)
			assert.Equal(t, pso.BindPointCompute, failed.BindPoint)
			assert.Equal(t, "failing", failed.Label)
			assert.Contains(t, failed.Dump, "cs_main")
			assert.Contains(t, err.Error(), tc.want.String())

			assert.Empty(t, drv.Live())
			assert.Equal(t, 1, drv.LiveLayouts())
		})
	}
}

func TestPipelineLayoutOutlivesOwner(t *testing.T) {
	d, drv := newDevice(t, pso.Features{})

	layout, err := d.NewPipelineLayout(pso.PipelineLayoutCreateInfo{
		Label:      "layout",
		SetLayouts: []pso.DescriptorSetLayout{{Handle: 10}},
		PushConstantRanges: []pso.PushConstantRange{
			{Stages: pso.ShaderStageVertex, Offset: 0, Size: 16},
			{Stages: pso.ShaderStageFragment, Offset: 16, Size: 16},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, drv.LiveLayouts())

	info := graphicsInfo("layout_user")
	info.Layout = layout
	p, err := d.NewGraphicsPipeline(info, pso.CreateOptions{})
	require.NoError(t, err)
	assert.Same(t, layout, p.Layout())

	implicit, err := d.NewGraphicsPipeline(graphicsInfo("implicit"), pso.CreateOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, p.Fingerprint(), implicit.Fingerprint(), "the layout is part of the fingerprint")
	assert.Equal(t, p.StateFingerprint(), implicit.StateFingerprint())
	assert.Equal(t, 2, drv.LiveLayouts())

	layout.Destroy()
	assert.Equal(t, 2, drv.LiveLayouts(), "the pipeline keeps the layout alive")

	info.Label = "after_destroy"
	_, err = d.NewGraphicsPipeline(info, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})

	p.Destroy()
	assert.Equal(t, 1, drv.LiveLayouts())
	implicit.Destroy()
	assert.Equal(t, 1, drv.LiveLayouts(), "the device owns the implicit layout")
}

func TestPipelineLayoutValidation(t *testing.T) {
	d, drv := newDevice(t, pso.Features{})

	for _, info := range []pso.PipelineLayoutCreateInfo{
		{Label: "null_set", SetLayouts: []pso.DescriptorSetLayout{{}}},
		{Label: "no_stages", PushConstantRanges: []pso.PushConstantRange{{Size: 4}}},
		{Label: "unaligned", PushConstantRanges: []pso.PushConstantRange{{Stages: pso.ShaderStageVertex, Size: 3}}},
		{Label: "overlap", PushConstantRanges: []pso.PushConstantRange{
			{Stages: pso.ShaderStageVertex, Size: 4},
			{Stages: pso.ShaderStageVertex | pso.ShaderStageFragment, Offset: 4, Size: 4},
		}},
	} {
		_, err := d.NewPipelineLayout(info)
		require.ErrorIs(t, err, pso.ErrorInvalidUsage{}, info.Label)
	}
	assert.Zero(t, drv.Calls().CreateLayout)
}

func TestLayoutHashIsContentBased(t *testing.T) {
	d, _ := newDevice(t, pso.Features{})
	info := pso.PipelineLayoutCreateInfo{SetLayouts: []pso.DescriptorSetLayout{{Handle: 1, Hash: 99}}}
	a, err := d.NewPipelineLayout(info)
	require.NoError(t, err)
	defer a.Destroy()

	info.SetLayouts[0].Handle = 2
	b, err := d.NewPipelineLayout(info)
	require.NoError(t, err)
	defer b.Destroy()

	assert.NotEqual(t, a.Handle(), b.Handle())
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestForeignLayoutRejected(t *testing.T) {
	a, _ := newDevice(t, pso.Features{})
	b, drv := newDevice(t, pso.Features{})

	layout, err := a.NewPipelineLayout(pso.PipelineLayoutCreateInfo{Label: "foreign"})
	require.NoError(t, err)
	defer layout.Destroy()

	info := computeInfo("foreign_layout")
	info.Layout = layout
	_, err = b.NewComputePipeline(info, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})
	assert.Zero(t, drv.Calls().Compute)
}

func TestBaseIndexOutsideBatch(t *testing.T) {
	d, _ := newDevice(t, pso.Features{})
	info := computeInfo("base_index")
	info.Flags = pso.PipelineCreateDerivative
	zero := 0
	info.BaseIndex = &zero
	_, err := d.NewComputePipeline(info, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})
}
