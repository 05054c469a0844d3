package wgcore

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/id"
)

func deviceCreateShaderModule[A API](g *Global, device id.DeviceID, desc *ShaderModuleDescriptor, idIn id.ShaderModuleID) (id.ShaderModuleID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.ShaderModuleID, error) {
		return assignError(h.shaderModules, idIn, desc.Label, err), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	module, err := g.compileWGSL(desc.Code)
	if err != nil {
		return fail(err)
	}
	raw, err := d.raw.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{WGSL: desc.Code},
	})
	if err != nil {
		return fail(fmt.Errorf("wgcore: create shader module: %w", err))
	}
	Logger().Debug("wgcore: shader module created", "label", desc.Label, "entry_points", len(module.EntryPoints))
	return assign(h.shaderModules, idIn, desc.Label, &ShaderModule{device: d, raw: raw, module: module}), nil
}

// compiledModule is a shader cache entry. Failures are cached too.
type compiledModule struct {
	module *ir.Module
	err    error
}

// compileWGSL returns the validated module for source, compiling it on
// the first request. The module is shared and must not be mutated.
func (g *Global) compileWGSL(source string) (*ir.Module, error) {
	c := g.shaders.GetOrCreate(source, func() compiledModule {
		m, err := compileWGSL(source)
		return compiledModule{module: m, err: err}
	})
	return c.module, c.err
}

// compileWGSL parses, lowers and validates source.
func compileWGSL(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrInvalidShader, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: lower: %w", ErrInvalidShader, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("%w: validate: %w", ErrInvalidShader, err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Message
			if v.Function != "" {
				msgs[i] = v.Function + ": " + v.Message
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidShader, strings.Join(msgs, "; "))
	}
	return module, nil
}

func deviceCreateShaderModuleSPIRV[A API](g *Global, device id.DeviceID, desc *ShaderModuleSPIRVDescriptor, idIn id.ShaderModuleID) (id.ShaderModuleID, error) {
	h := hubOf[A](g)
	fail := func(err error) (id.ShaderModuleID, error) {
		return assignError(h.shaderModules, idIn, desc.Label, err), err
	}
	d, err := resolve[A](h.devices, device)
	if err != nil {
		return fail(err)
	}
	if err := d.check(); err != nil {
		return fail(err)
	}
	if len(desc.Code) == 0 || desc.Code[0] != spirvMagic {
		return fail(fmt.Errorf("%w: missing SPIR-V magic number", ErrInvalidShader))
	}
	raw, err := d.raw.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: desc.Code},
	})
	if err != nil {
		return fail(fmt.Errorf("wgcore: create shader module: %w", err))
	}
	return assign(h.shaderModules, idIn, desc.Label, &ShaderModule{device: d, raw: raw}), nil
}

const spirvMagic = 0x07230203

func shaderModuleLabel[A API](g *Global, module id.ShaderModuleID) string {
	return labelOf[A](hubOf[A](g).shaderModules, module)
}

func shaderModuleDrop[A API](g *Global, module id.ShaderModuleID) {
	if m, ok := unregister[A](hubOf[A](g).shaderModules, module); ok {
		m.device.raw.DestroyShaderModule(m.raw)
	}
}

var errNoReflection = errors.New("wgcore: shader module has no reflection data")

// entryPoint finds name in m with the given stage. An empty name selects
// the only entry point of that stage.
func (m *ShaderModule) entryPoint(name string, stage ir.ShaderStage) (*ir.EntryPoint, error) {
	if m.module == nil {
		if name == "" {
			return nil, fmt.Errorf("%w: SPIR-V stages need an explicit entry point", ErrEntryPointNotFound)
		}
		return nil, nil
	}
	var found *ir.EntryPoint
	for i := range m.module.EntryPoints {
		ep := &m.module.EntryPoints[i]
		if name != "" && ep.Name != name {
			continue
		}
		if ep.Stage != stage {
			if name != "" {
				return nil, fmt.Errorf("%w: %q is a %s entry point, not %s", ErrEntryPointNotFound, name, stageName(ep.Stage), stageName(stage))
			}
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: more than one %s entry point, name one", ErrEntryPointNotFound, stageName(stage))
		}
		found = ep
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %q (%s)", ErrEntryPointNotFound, name, stageName(stage))
	}
	return found, nil
}

func stageName(s ir.ShaderStage) string {
	switch s {
	case ir.StageVertex:
		return "vertex"
	case ir.StageFragment:
		return "fragment"
	case ir.StageCompute:
		return "compute"
	case ir.StageTask:
		return "task"
	case ir.StageMesh:
		return "mesh"
	}
	return "unknown"
}

// derivedBinding is one reflected resource binding with the stages that
// declare it.
type derivedBinding struct {
	group uint32
	entry gputypes.BindGroupLayoutEntry
}

// deriveBindings reflects every bound global of module into layout entries
// visible to stages. A binding seen in two modules must agree on its type.
func deriveBindings(into map[[2]uint32]*derivedBinding, module *ir.Module, stages gputypes.ShaderStages) error {
	if module == nil {
		return errNoReflection
	}
	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		entry, err := reflectEntry(module, &gv)
		if err != nil {
			return fmt.Errorf("%s @group(%d) @binding(%d): %w", gv.Name, gv.Binding.Group, gv.Binding.Binding, err)
		}
		entry.Binding = gv.Binding.Binding
		key := [2]uint32{gv.Binding.Group, gv.Binding.Binding}
		if prev, ok := into[key]; ok {
			prev.entry.Visibility |= stages
			if bindingTypeCount(&prev.entry) != 1 || !sameBindingType(&prev.entry, &entry) {
				return fmt.Errorf("%w: @group(%d) @binding(%d) is declared with different types", ErrBindingMismatch, key[0], key[1])
			}
			continue
		}
		entry.Visibility = stages
		into[key] = &derivedBinding{group: gv.Binding.Group, entry: entry}
	}
	return nil
}

func sameBindingType(a, b *gputypes.BindGroupLayoutEntry) bool {
	switch {
	case a.Buffer != nil && b.Buffer != nil:
		return a.Buffer.Type == b.Buffer.Type
	case a.Sampler != nil && b.Sampler != nil:
		return a.Sampler.Type == b.Sampler.Type
	case a.Texture != nil && b.Texture != nil:
		return *a.Texture == *b.Texture
	case a.StorageTexture != nil && b.StorageTexture != nil:
		return *a.StorageTexture == *b.StorageTexture
	}
	return false
}

func reflectEntry(module *ir.Module, gv *ir.GlobalVariable) (gputypes.BindGroupLayoutEntry, error) {
	var e gputypes.BindGroupLayoutEntry
	switch gv.Space {
	case ir.SpaceUniform:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		return e, nil
	case ir.SpaceStorage:
		t := gputypes.BufferBindingTypeStorage
		if gv.Access == ir.StorageRead {
			t = gputypes.BufferBindingTypeReadOnlyStorage
		}
		e.Buffer = &gputypes.BufferBindingLayout{Type: t}
		return e, nil
	case ir.SpaceHandle:
	default:
		return e, fmt.Errorf("%w: unsupported address space %d", ErrBindingType, gv.Space)
	}

	if int(gv.Type) >= len(module.Types) {
		return e, fmt.Errorf("%w: type handle %d out of range", ErrBindingType, gv.Type)
	}
	switch inner := module.Types[gv.Type].Inner.(type) {
	case ir.SamplerType:
		t := gputypes.SamplerBindingTypeFiltering
		if inner.Comparison {
			t = gputypes.SamplerBindingTypeComparison
		}
		e.Sampler = &gputypes.SamplerBindingLayout{Type: t}
	case ir.ImageType:
		dim := imageViewDimension(inner)
		switch inner.Class {
		case ir.ImageClassStorage:
			format, ok := storageFormats[inner.StorageFormat]
			if !ok {
				return e, fmt.Errorf("%w: storage format %d has no texture format", ErrFormat, inner.StorageFormat)
			}
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        storageAccess(inner.StorageAccess),
				Format:        format,
				ViewDimension: dim,
			}
		case ir.ImageClassDepth:
			e.Texture = &gputypes.TextureBindingLayout{SampleType: gputypes.TextureSampleTypeDepth, ViewDimension: dim, Multisampled: inner.Multisampled}
		default:
			e.Texture = &gputypes.TextureBindingLayout{SampleType: sampleType(inner.SampledKind), ViewDimension: dim, Multisampled: inner.Multisampled}
		}
	default:
		return e, fmt.Errorf("%w: handle type %T", ErrBindingType, inner)
	}
	return e, nil
}

func imageViewDimension(t ir.ImageType) gputypes.TextureViewDimension {
	switch t.Dim {
	case ir.Dim1D:
		return gputypes.TextureViewDimension1D
	case ir.Dim3D:
		return gputypes.TextureViewDimension3D
	case ir.DimCube:
		if t.Arrayed {
			return gputypes.TextureViewDimensionCubeArray
		}
		return gputypes.TextureViewDimensionCube
	}
	if t.Arrayed {
		return gputypes.TextureViewDimension2DArray
	}
	return gputypes.TextureViewDimension2D
}

func sampleType(k ir.ScalarKind) gputypes.TextureSampleType {
	switch k {
	case ir.ScalarSint:
		return gputypes.TextureSampleTypeSint
	case ir.ScalarUint:
		return gputypes.TextureSampleTypeUint
	}
	return gputypes.TextureSampleTypeFloat
}

func storageAccess(a ir.StorageAccess) gputypes.StorageTextureAccess {
	switch a {
	case ir.StorageAccessRead:
		return gputypes.StorageTextureAccessReadOnly
	case ir.StorageAccessWrite:
		return gputypes.StorageTextureAccessWriteOnly
	}
	return gputypes.StorageTextureAccessReadWrite
}

var storageFormats = map[ir.StorageFormat]gputypes.TextureFormat{
	ir.StorageFormatR32Uint:     gputypes.TextureFormatR32Uint,
	ir.StorageFormatR32Sint:     gputypes.TextureFormatR32Sint,
	ir.StorageFormatR32Float:    gputypes.TextureFormatR32Float,
	ir.StorageFormatRgba8Unorm:  gputypes.TextureFormatRGBA8Unorm,
	ir.StorageFormatRgba8Snorm:  gputypes.TextureFormatRGBA8Snorm,
	ir.StorageFormatRgba8Uint:   gputypes.TextureFormatRGBA8Uint,
	ir.StorageFormatRgba8Sint:   gputypes.TextureFormatRGBA8Sint,
	ir.StorageFormatBgra8Unorm:  gputypes.TextureFormatBGRA8Unorm,
	ir.StorageFormatRg32Uint:    gputypes.TextureFormatRG32Uint,
	ir.StorageFormatRg32Float:   gputypes.TextureFormatRG32Float,
	ir.StorageFormatRgba16Float: gputypes.TextureFormatRGBA16Float,
	ir.StorageFormatRgba32Uint:  gputypes.TextureFormatRGBA32Uint,
	ir.StorageFormatRgba32Sint:  gputypes.TextureFormatRGBA32Sint,
	ir.StorageFormatRgba32Float: gputypes.TextureFormatRGBA32Float,
}

// groupDerived splits reflected bindings into per-group entry lists,
// sorted by binding. Groups below the highest used one get empty layouts.
func groupDerived(bindings map[[2]uint32]*derivedBinding) [][]gputypes.BindGroupLayoutEntry {
	var n uint32
	for _, b := range bindings {
		if b.group+1 > n {
			n = b.group + 1
		}
	}
	groups := make([][]gputypes.BindGroupLayoutEntry, n)
	for _, b := range bindings {
		groups[b.group] = append(groups[b.group], b.entry)
	}
	for _, entries := range groups {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })
	}
	return groups
}
