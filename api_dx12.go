//go:build dx12 && windows && !js

package wgcore

import _ "github.com/gogpu/wgpu/hal/dx12"

func init() { registerAPI[Dx12]() }
