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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goarrg.com/rhi/pso"
)

func TestExtensionsOnlyWiredWhenEnabled(t *testing.T) {
	d, drv := newDevice(t, pso.Features{})

	quality := pso.CompilerControlPreferQuality
	info := computeInfo("ignored")
	info.Extensions.CompilerControl = &quality
	info.Extensions.CreationFeedback = true

	drv.OnCompute = func(requests []pso.ComputePipelineRequest) {
		ext := requests[0].Extensions
		assert.Nil(t, ext.CompilerControl)
		assert.Nil(t, ext.Feedback)
		assert.Nil(t, ext.Robustness)
		assert.Empty(t, ext.Libraries)
	}
	p, err := d.NewComputePipeline(info, pso.CreateOptions{})
	require.NoError(t, err)
	_, _, ok := p.CreationFeedback()
	assert.False(t, ok)
	p.Destroy()

	robust := computeInfo("robust")
	robust.Extensions.Robustness = &pso.PipelineRobustness{Images: pso.RobustnessRobustAccess}
	_, err = d.NewComputePipeline(robust, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorCapabilityUnavailable{})
	assert.Equal(t, 1, drv.Calls().Compute)
}

func TestCompilerControlDefault(t *testing.T) {
	d, drv := newDevice(t, pso.Features{CompilerControl: true}, func(c *pso.Config) {
		c.CompilerControl = pso.CompilerControlPreferSpeed | pso.CompilerControlNoCache
	})

	override := pso.CompilerControlNone
	overridden := computeInfo("overridden")
	overridden.Extensions.CompilerControl = &override

	b := d.NewComputeBatch()
	addAll(t, b, computeInfo("default"), overridden)
	assert.Equal(t, b.Fingerprints(0), b.Fingerprints(1), "compiler control is not part of the fingerprint")

	override = pso.CompilerControlPreferQuality
	drv.OnCompute = func(requests []pso.ComputePipelineRequest) {
		assert.Equal(t, pso.CompilerControlPreferSpeed|pso.CompilerControlNoCache, *requests[0].Extensions.CompilerControl)
		assert.Equal(t, pso.CompilerControlNone, *requests[1].Extensions.CompilerControl, "the override was copied")
	}
	pipelines, err := b.Commit(pso.CreateOptions{})
	require.NoError(t, err)
	destroyAll(pipelines)
}

func TestRobustnessFingerprint(t *testing.T) {
	d, _ := newDevice(t, pso.Features{PipelineRobustness: true})
	b := d.NewComputeBatch()

	a := computeInfo("a")
	a.Extensions.Robustness = &pso.PipelineRobustness{StorageBuffers: pso.RobustnessRobustAccess}
	same := computeInfo("same")
	same.Extensions.Robustness = &pso.PipelineRobustness{StorageBuffers: pso.RobustnessRobustAccess}
	other := computeInfo("other")
	other.Extensions.Robustness = &pso.PipelineRobustness{StorageBuffers: pso.RobustnessRobustAccess2}
	defaulted := computeInfo("defaulted")
	defaulted.Extensions.Robustness = &pso.PipelineRobustness{}

	addAll(t, b, a, same, other, defaulted, computeInfo("none"))
	f := b.Fingerprints
	assert.Equal(t, f(0), f(1))
	assert.NotEqual(t, f(0).Fingerprint, f(2).Fingerprint)
	assert.NotEqual(t, f(3).Fingerprint, f(4).Fingerprint, "an explicit default differs from no robustness at all")
	assert.Equal(t, f(0).State, f(4).State)
	b.Reset()
}

func TestCompilerControlFlagsString(t *testing.T) {
	assert.Equal(t, "None", pso.CompilerControlNone.String())
	assert.Equal(t, "PreferSpeed|NoCache", (pso.CompilerControlPreferSpeed | pso.CompilerControlNoCache).String())
}
