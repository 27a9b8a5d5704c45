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
	"goarrg.com/gmath"

	"goarrg.com/rhi/pso"
)

const computeWGSL = `
@compute @workgroup_size(8, 4, 1)
fn main() {
}
`

func TestCompileShaderModule(t *testing.T) {
	m, err := pso.CompileShaderModule("compute", computeWGSL, pso.DefaultShaderCompilerOptions())
	require.NoError(t, err)

	code := m.Code()
	require.NotEmpty(t, code)
	assert.Equal(t, uint32(0x07230203), code[0], "SPIR-V magic")

	require.NotNil(t, m.Reflection())
	require.Len(t, m.Reflection().EntryPoints, 1)
	e := m.Reflection().EntryPoints[0]
	assert.Equal(t, "main", e.Name)
	assert.Equal(t, pso.ShaderStageCompute, e.Stage)
	assert.Equal(t, gmath.Extent3u32{X: 8, Y: 4, Z: 1}, e.Workgroup)

	again, err := pso.CompileShaderModule("renamed", computeWGSL, pso.DefaultShaderCompilerOptions())
	require.NoError(t, err)
	assert.Equal(t, m.Hash(), again.Hash())

	d, _ := newDevice(t, pso.Features{})
	info := computeInfo("compiled")
	info.Stage = stage(pso.ShaderStageCompute, m, "main")
	p, err := d.NewComputePipeline(info, pso.CreateOptions{})
	require.NoError(t, err)
	p.Destroy()

	info.Stage = stage(pso.ShaderStageVertex, m, "main")
	_, err = d.NewComputePipeline(info, pso.CreateOptions{})
	require.ErrorIs(t, err, pso.ErrorInvalidUsage{})
}

func TestCompileShaderModuleInvalid(t *testing.T) {
	_, err := pso.CompileShaderModule("broken", "fn main( {", pso.DefaultShaderCompilerOptions())
	assert.Error(t, err)
}
