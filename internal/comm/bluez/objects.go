// internal/comm/bluez/objects.go
package bluez

import (
	"fmt"
	"sort"
	"strings"

	dbus "github.com/godbus/dbus/v5"
)

const (
	bluezService     = "org.bluez"
	adapterIface     = "org.bluez.Adapter1"
	deviceIface      = "org.bluez.Device1"
	gattCharIface    = "org.bluez.GattCharacteristic1"
	objManagerIface  = "org.freedesktop.DBus.ObjectManager"
	bluezPathPrefix  = "/org/bluez/"
	writeFlag        = "write"
	writeNoRespFlag  = "write-without-response"
	writeTypeCommand = "command"
	writeTypeRequest = "request"
)

// managedObjects is the GetManagedObjects reply shape
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// bleDevice is one Device1 object worth announcing
type bleDevice struct {
	Path    dbus.ObjectPath
	Name    string
	Address string
}

// characteristic is a writable GattCharacteristic1
type characteristic struct {
	Path      dbus.ObjectPath
	WriteType string
}

func getManagedObjects(bus *dbus.Conn) (managedObjects, error) {
	var objs managedObjects
	call := bus.Object(bluezService, dbus.ObjectPath("/")).Call(objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

// adapters returns the adapter paths, restricted to name when set
func (objs managedObjects) adapters(name string) []dbus.ObjectPath {
	var out []dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; !ok {
			continue
		}
		if name != "" && string(path) != bluezPathPrefix+name {
			continue
		}
		out = append(out, path)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// devices returns the named devices below the given adapters whose name
// starts with one of prefixes. No prefixes matches every named device.
func (objs managedObjects) devices(adapters []dbus.ObjectPath, prefixes []string) []bleDevice {
	var out []bleDevice
	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok || !below(path, adapters) {
			continue
		}

		name, _ := stringProp(props, "Name")
		if name == "" {
			name, _ = stringProp(props, "Alias")
		}
		address, _ := stringProp(props, "Address")
		if name == "" || address == "" || !hasPrefix(name, prefixes) {
			continue
		}

		out = append(out, bleDevice{Path: path, Name: name, Address: address})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// writeCharacteristic picks the first characteristic below device that accepts writes
func (objs managedObjects) writeCharacteristic(device dbus.ObjectPath) (characteristic, bool) {
	prefix := string(device) + "/"

	var paths []dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[gattCharIface]; ok && strings.HasPrefix(string(path), prefix) {
			paths = append(paths, path)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	for _, path := range paths {
		flagsVar, ok := objs[path][gattCharIface]["Flags"]
		if !ok {
			continue
		}
		flags, _ := flagsVar.Value().([]string)
		for _, f := range flags {
			switch f {
			case writeNoRespFlag:
				return characteristic{Path: path, WriteType: writeTypeCommand}, true
			case writeFlag:
				return characteristic{Path: path, WriteType: writeTypeRequest}, true
			}
		}
	}
	return characteristic{}, false
}

func stringProp(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func below(path dbus.ObjectPath, parents []dbus.ObjectPath) bool {
	for _, p := range parents {
		if strings.HasPrefix(string(path), string(p)+"/") {
			return true
		}
	}
	return false
}

func hasPrefix(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
