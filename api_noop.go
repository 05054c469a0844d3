package wgcore

import _ "github.com/gogpu/wgpu/hal/noop"

func init() { registerAPI[Empty]() }
