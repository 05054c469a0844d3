//go:build metal && darwin && !js

package wgcore

import _ "github.com/gogpu/wgpu/hal/metal"

func init() { registerAPI[Metal]() }
