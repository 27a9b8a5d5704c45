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

// Device binds a Driver to a resolved Config. All pipelines, layouts,
// batches and libraries are created through a Device.
type Device struct {
	noCopy      noCopy
	driver      Driver
	config      config
	emptyLayout *PipelineLayout
}

func NewDevice(driver Driver, cfg Config) *Device {
	if driver == nil {
		abort("NewDevice called with a nil Driver")
	}
	cfg.validate()
	instance.logger.IPrintf("User requested config: %s", prettyString(&cfg))

	d := &Device{driver: driver}
	d.config.use(cfg, driver)
	d.noCopy.init()
	return d
}

// Features returns the features in use, the requested ones minus whatever
// the driver does not support.
func (d *Device) Features() Features {
	return d.config.features
}

func (d *Device) Limits() Limits {
	return d.config.limits
}

func (d *Device) Driver() Driver {
	return d.driver
}

// resolveLayout returns l, or the implicit empty layout for nil, with a
// reference taken for the caller.
func (d *Device) resolveLayout(l *PipelineLayout) (*PipelineLayout, error) {
	if l == nil {
		if d.emptyLayout == nil {
			layout, err := d.createPipelineLayout(PipelineLayoutCreateInfo{Label: "implicit_empty"}, true)
			if err != nil {
				return nil, err
			}
			d.emptyLayout = layout
		}
		l = d.emptyLayout
	}
	if l.dev != d {
		return nil, invalidUsage("PipelineLayout %q belongs to a different device", l.info.Label)
	}
	if err := l.retain(); err != nil {
		return nil, err
	}
	return l, nil
}

func (d *Device) NewGraphicsPipeline(info GraphicsPipelineCreateInfo, opts CreateOptions) (*Pipeline, error) {
	return createSingle(d, graphicsKind{}, info, opts)
}

func (d *Device) NewComputePipeline(info ComputePipelineCreateInfo, opts CreateOptions) (*Pipeline, error) {
	return createSingle(d, computeKind{}, info, opts)
}

func (d *Device) NewRayTracingPipeline(info RayTracingPipelineCreateInfo, opts CreateOptions) (*Pipeline, error) {
	return createSingle(d, rayTracingKind{}, info, opts)
}

func (d *Device) NewGraphicsBatch() *GraphicsBatch {
	return newBatch(d, graphicsKind{})
}

func (d *Device) NewComputeBatch() *ComputeBatch {
	return newBatch(d, computeKind{})
}

func (d *Device) NewRayTracingBatch() *RayTracingBatch {
	return newBatch(d, rayTracingKind{})
}

// Destroy releases the implicit empty layout. Pipelines still using it keep
// it alive until they are destroyed.
func (d *Device) Destroy() {
	d.noCopy.check()
	if d.emptyLayout != nil {
		d.emptyLayout.noCopy.close()
		d.emptyLayout.release()
		d.emptyLayout = nil
	}
	d.noCopy.close()
}
