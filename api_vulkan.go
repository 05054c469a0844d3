//go:build vulkan && !android && !js

package wgcore

import _ "github.com/gogpu/wgpu/hal/vulkan"

func init() { registerAPI[Vulkan]() }
