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

// PipelineHandle and the other handle types are opaque driver objects, zero is null.
type (
	PipelineHandle            uint64
	PipelineLayoutHandle      uint64
	PipelineCacheHandle       uint64
	DescriptorSetLayoutHandle uint64
	DeferredOperationHandle   uint64
	HostAllocator             uint64
)

const NullHandle = 0

type Status int32

const (
	StatusSuccess                   Status = 0
	StatusNotReady                  Status = 1
	StatusTimeout                   Status = 2
	StatusIncomplete                Status = 5
	StatusErrorOutOfHostMemory      Status = -1
	StatusErrorOutOfDeviceMemory    Status = -2
	StatusErrorInitializationFailed Status = -3
	StatusErrorDeviceLost           Status = -4
	StatusErrorFeatureNotPresent    Status = -8
	StatusErrorTooManyObjects       Status = -10
	StatusErrorUnknown              Status = -13
	StatusErrorInvalidShader        Status = -1000012000
	StatusThreadIdle                Status = 1000268000
	StatusThreadDone                Status = 1000268001
	StatusOperationDeferred         Status = 1000268002
	StatusOperationNotDeferred      Status = 1000268003
	StatusPipelineCompileRequired   Status = 1000297000
)

// Succeeded reports whether the call completed, a deferred operation counts
// as completed since joining it is the caller's business.
func (s Status) Succeeded() bool {
	switch s {
	case StatusSuccess, StatusOperationDeferred, StatusOperationNotDeferred:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusNotReady:
		return "NotReady"
	case StatusTimeout:
		return "Timeout"
	case StatusIncomplete:
		return "Incomplete"
	case StatusErrorOutOfHostMemory:
		return "ErrorOutOfHostMemory"
	case StatusErrorOutOfDeviceMemory:
		return "ErrorOutOfDeviceMemory"
	case StatusErrorInitializationFailed:
		return "ErrorInitializationFailed"
	case StatusErrorDeviceLost:
		return "ErrorDeviceLost"
	case StatusErrorFeatureNotPresent:
		return "ErrorFeatureNotPresent"
	case StatusErrorTooManyObjects:
		return "ErrorTooManyObjects"
	case StatusErrorUnknown:
		return "ErrorUnknown"
	case StatusErrorInvalidShader:
		return "ErrorInvalidShader"
	case StatusThreadIdle:
		return "ThreadIdle"
	case StatusThreadDone:
		return "ThreadDone"
	case StatusOperationDeferred:
		return "OperationDeferred"
	case StatusOperationNotDeferred:
		return "OperationNotDeferred"
	case StatusPipelineCompileRequired:
		return "PipelineCompileRequired"
	default:
		return "Status(" + toHex(uint32(s)) + ")"
	}
}

// Driver is the collaborator that owns the real graphics API. Every bulk call
// fills pipelines, which has the same length as requests, and reports one
// status for the whole call. Handles may be null even on success.
type Driver interface {
	CreateGraphicsPipelines(cache PipelineCacheHandle, requests []GraphicsPipelineRequest, allocator HostAllocator, pipelines []PipelineHandle) Status
	CreateComputePipelines(cache PipelineCacheHandle, requests []ComputePipelineRequest, allocator HostAllocator, pipelines []PipelineHandle) Status
	CreateRayTracingPipelines(deferred DeferredOperationHandle, cache PipelineCacheHandle, requests []RayTracingPipelineRequest, allocator HostAllocator, pipelines []PipelineHandle) Status
	DestroyPipeline(pipeline PipelineHandle, allocator HostAllocator)

	CreatePipelineLayout(request *PipelineLayoutRequest, allocator HostAllocator) (PipelineLayoutHandle, Status)
	DestroyPipelineLayout(layout PipelineLayoutHandle, allocator HostAllocator)
}

// LibraryDriver is implemented by drivers able to compile pipeline library
// fragments, one call per subset. Fragments are destroyed with DestroyPipeline.
type LibraryDriver interface {
	CreateVertexInputInterface(cache PipelineCacheHandle, request *VertexInputInterfaceRequest, allocator HostAllocator) (PipelineHandle, Status)
	CreatePreRasterizationShaders(cache PipelineCacheHandle, request *PreRasterizationShadersRequest, allocator HostAllocator) (PipelineHandle, Status)
	CreateFragmentShader(cache PipelineCacheHandle, request *FragmentShaderRequest, allocator HostAllocator) (PipelineHandle, Status)
	CreateFragmentOutputInterface(cache PipelineCacheHandle, request *FragmentOutputInterfaceRequest, allocator HostAllocator) (PipelineHandle, Status)
}

// FeatureReporter is implemented by drivers that know which optional
// features they support, requested features outside of it are dropped.
type FeatureReporter interface {
	SupportedFeatures() Features
}
