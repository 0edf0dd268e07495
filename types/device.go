package types

import (
	"errors"
	"fmt"
	"strings"
)

type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
	// DeviceAuto selects cuda when the backend can run there and cpu otherwise.
	DeviceAuto Device = "auto"
)

var ErrDeviceUnavailable = errors.New("device unavailable")

func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DeviceAuto, nil
	case DeviceCPU, DeviceCUDA, DeviceAuto:
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q", s)
	}
}

// SelectDevice resolves the preference against the devices a backend reports.
func SelectDevice(preference Device, available []Device) (Device, error) {
	has := func(d Device) bool {
		for _, a := range available {
			if a == d {
				return true
			}
		}
		return false
	}

	switch preference {
	case DeviceAuto, "":
		if has(DeviceCUDA) {
			return DeviceCUDA, nil
		}
		if has(DeviceCPU) {
			return DeviceCPU, nil
		}
		return "", ErrDeviceUnavailable
	default:
		if has(preference) {
			return preference, nil
		}
		return "", fmt.Errorf("%w: %s (available: %v)", ErrDeviceUnavailable, preference, available)
	}
}
