//go:build windows

package webgpu

// workgroupSize is the number of threads per workgroup.
const workgroupSize = 256

// maxWorkgroups is the per-dimension dispatch limit guaranteed by WebGPU.
const maxWorkgroups = 65535

// fillShader sets every element: x = value.
const fillShader = `
@group(0) @binding(0) var<storage, read_write> x: array<f32>;

struct Params {
    size: u32,
    alpha: f32,
}
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        x[idx] = params.alpha;
    }
}
`

// scaleShader multiplies in place: x = alpha * x.
const scaleShader = `
@group(0) @binding(0) var<storage, read_write> x: array<f32>;

struct Params {
    size: u32,
    alpha: f32,
}
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        x[idx] = params.alpha * x[idx];
    }
}
`

// axpyShader accumulates in place: y = y + alpha * x.
const axpyShader = `
@group(0) @binding(0) var<storage, read_write> y: array<f32>;
@group(0) @binding(1) var<storage, read> x: array<f32>;

struct Params {
    size: u32,
    alpha: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        y[idx] = y[idx] + params.alpha * x[idx];
    }
}
`

// sumSquaresShader writes one partial sum of x*x per workgroup.
const sumSquaresShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> partials: array<f32>;

struct Params {
    size: u32,
    alpha: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

var<workgroup> scratch: array<f32, 256>;

@compute @workgroup_size(256)
fn main(
    @builtin(global_invocation_id) global_id: vec3<u32>,
    @builtin(local_invocation_id) local_id: vec3<u32>,
    @builtin(workgroup_id) group_id: vec3<u32>,
) {
    let idx = global_id.x;
    let lid = local_id.x;

    var v: f32 = 0.0;
    if (idx < params.size) {
        v = x[idx] * x[idx];
    }
    scratch[lid] = v;
    workgroupBarrier();

    var stride: u32 = 128u;
    loop {
        if (stride == 0u) {
            break;
        }
        if (lid < stride) {
            scratch[lid] = scratch[lid] + scratch[lid + stride];
        }
        workgroupBarrier();
        stride = stride / 2u;
    }

    if (lid == 0u) {
        partials[group_id.x] = scratch[0];
    }
}
`
