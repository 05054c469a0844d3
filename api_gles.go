//go:build gles && (linux || windows) && !js

package wgcore

import _ "github.com/gogpu/wgpu/hal/gles"

func init() { registerAPI[Gles]() }
