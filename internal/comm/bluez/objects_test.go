package bluez

import (
	"testing"

	dbus "github.com/godbus/dbus/v5"
)

func props(kv ...interface{}) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant)
	for i := 0; i < len(kv); i += 2 {
		out[kv[i].(string)] = dbus.MakeVariant(kv[i+1])
	}
	return out
}

func sampleObjects() managedObjects {
	return managedObjects{
		"/org/bluez/hci0": {adapterIface: props("Powered", true)},
		"/org/bluez/hci1": {adapterIface: props("Powered", true)},
		"/org/bluez/hci0/dev_AA_BB": {
			deviceIface: props("Name", "LVS-Lush", "Address", "AA:BB"),
		},
		"/org/bluez/hci0/dev_CC_DD": {
			deviceIface: props("Alias", "Keyboard", "Address", "CC:DD"),
		},
		"/org/bluez/hci1/dev_EE_FF": {
			deviceIface: props("Name", "LVS-Hush", "Address", "EE:FF"),
		},
		"/org/bluez/hci0/dev_AA_BB/service0010/char0011": {
			gattCharIface: props("UUID", "read-only", "Flags", []string{"read", "notify"}),
		},
		"/org/bluez/hci0/dev_AA_BB/service0010/char0013": {
			gattCharIface: props("UUID", "tx", "Flags", []string{"write-without-response", "write"}),
		},
	}
}

func TestAdaptersRestrictedByName(t *testing.T) {
	objs := sampleObjects()

	if got := objs.adapters(""); len(got) != 2 || got[0] != "/org/bluez/hci0" {
		t.Fatalf("unexpected adapters %v", got)
	}
	if got := objs.adapters("hci1"); len(got) != 1 || got[0] != "/org/bluez/hci1" {
		t.Fatalf("unexpected filtered adapters %v", got)
	}
}

func TestDevicesFilteredByPrefix(t *testing.T) {
	objs := sampleObjects()

	devs := objs.devices(objs.adapters("hci0"), []string{"LVS-"})
	if len(devs) != 1 || devs[0].Address != "AA:BB" || devs[0].Name != "LVS-Lush" {
		t.Fatalf("unexpected devices %+v", devs)
	}

	all := objs.devices(objs.adapters(""), nil)
	if len(all) != 3 {
		t.Fatalf("expected 3 named devices, got %+v", all)
	}
	if all[1].Name != "Keyboard" {
		t.Fatalf("expected alias fallback, got %+v", all[1])
	}
}

func TestWriteCharacteristic(t *testing.T) {
	objs := sampleObjects()

	char, ok := objs.writeCharacteristic("/org/bluez/hci0/dev_AA_BB")
	if !ok {
		t.Fatalf("expected a writable characteristic")
	}
	if char.Path != "/org/bluez/hci0/dev_AA_BB/service0010/char0013" || char.WriteType != writeTypeCommand {
		t.Fatalf("unexpected characteristic %+v", char)
	}

	if _, ok := objs.writeCharacteristic("/org/bluez/hci1/dev_EE_FF"); ok {
		t.Fatalf("expected no characteristic for a device without services")
	}
}
