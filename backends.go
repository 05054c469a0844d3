package wgcore

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore/id"
)

// DynBackend is the backend-independent view of one compiled-in backend.
// Code that only holds an identifier reaches the backend through
// Global.Backend and calls these methods without knowing the backend type.
type DynBackend interface {
	Backend() gputypes.Backend

	// DeviceByID returns the device registered under device. It panics if
	// the device is missing or was registered as an error.
	DeviceByID(device id.DeviceID) DynDevice

	CreateBindGroup(device id.DeviceID, desc *BindGroupDescriptor, idIn id.BindGroupID) (id.BindGroupID, error)
	BindGroupLabel(group id.BindGroupID) string
	DropBindGroup(group id.BindGroupID)
}

// DynDevice is the backend-independent view of a device. DowncastDevice
// recovers the concrete device.
type DynDevice interface {
	Backend() gputypes.Backend
	ID() id.DeviceID
	Label() string
}

type backendObject[A API] struct {
	g *Global
}

func newBackendObject[A API](g *Global) DynBackend {
	return &backendObject[A]{g: g}
}

func (b *backendObject[A]) Backend() gputypes.Backend {
	var a A
	return a.Variant()
}

func (b *backendObject[A]) DeviceByID(device id.DeviceID) DynDevice {
	d, err := resolve[A](hubOf[A](b.g).devices, device)
	if err != nil {
		panic(fmt.Sprintf("wgcore: device %v: %v", device, err))
	}
	return deviceRef[A]{dev: d}
}

func (b *backendObject[A]) CreateBindGroup(device id.DeviceID, desc *BindGroupDescriptor, idIn id.BindGroupID) (id.BindGroupID, error) {
	return deviceCreateBindGroup[A](b.g, device, desc, idIn)
}

func (b *backendObject[A]) BindGroupLabel(group id.BindGroupID) string {
	return bindGroupLabel[A](b.g, group)
}

func (b *backendObject[A]) DropBindGroup(group id.BindGroupID) {
	bindGroupDrop[A](b.g, group)
}

type deviceRef[A API] struct {
	dev *Device
}

func (r deviceRef[A]) Backend() gputypes.Backend {
	var a A
	return a.Variant()
}

func (r deviceRef[A]) ID() id.DeviceID { return r.dev.id }
func (r deviceRef[A]) Label() string   { return r.dev.label }

// DowncastDevice returns the concrete device behind d. It panics if d
// belongs to a backend other than A.
func DowncastDevice[A API](d DynDevice) *Device {
	var a A
	if d.Backend() != a.Variant() {
		panic(fmt.Sprintf("wgcore: cannot downcast a %v device to %v", d.Backend(), a.Variant()))
	}
	return d.(deviceRef[A]).dev
}
