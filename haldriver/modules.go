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

package haldriver

import (
	"github.com/gogpu/wgpu/hal"
	"github.com/hashicorp/golang-lru/v2"

	"goarrg.com/rhi/pso"
)

const minModuleCacheSize = 16

// moduleCache keeps shader modules keyed by their code hash so stages that
// share a module compile it once. Evicted modules are destroyed, pipelines
// created from them stay valid.
type moduleCache struct {
	device hal.Device
	cache  *lru.Cache[uint64, hal.ShaderModule]
}

func newModuleCache(device hal.Device, size int) (*moduleCache, error) {
	size = max(size, minModuleCacheSize)
	c := &moduleCache{device: device}
	cache, err := lru.NewWithEvict[uint64, hal.ShaderModule](size, c.evict)
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

func (c *moduleCache) evict(hash uint64, module hal.ShaderModule) {
	instance.logger.VPrintf("Destroying shader module 0x%016X", hash)
	c.device.DestroyShaderModule(module)
}

func (c *moduleCache) get(stage *pso.ShaderStageRequest) (hal.ShaderModule, error) {
	if m, ok := c.cache.Get(stage.CodeHash); ok {
		return m, nil
	}
	m, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  stage.Name,
		Source: hal.ShaderSource{SPIRV: stage.Code},
	})
	if err != nil {
		return nil, err
	}
	c.cache.Add(stage.CodeHash, m)
	return m, nil
}

func (c *moduleCache) len() int {
	return c.cache.Len()
}

func (c *moduleCache) purge() {
	c.cache.Purge()
}
