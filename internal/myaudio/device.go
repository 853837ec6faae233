package myaudio

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/elan-lab/ultravox-elan/internal/errors"
)

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string // decoded backend id, e.g. ":1,0" on ALSA
	IsDefault bool
}

// candidate is the subset of malgo.DeviceInfo used for selection.
type candidate struct {
	name      string
	id        string
	isDefault bool
}

// getBackendForPlatform returns the malgo backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system: %s", runtime.GOOS).
			Component("myaudio").
			Category(errors.CategoryAudioSource).
			Build()
	}
}

// ListDevices enumerates capture devices, skipping the null device.
func ListDevices() ([]DeviceInfo, error) {
	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodeDeviceID(infos[i].ID.String()),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// selectDevice returns the index of the device matching name. Matching order:
// system default, exact name, decoded id, ALSA hw alias, name substring.
func selectDevice(devices []candidate, name string) (int, error) {
	if name == "" || name == "default" || name == "sysdefault" {
		for i := range devices {
			if devices[i].isDefault {
				return i, nil
			}
		}
		if len(devices) > 0 {
			return 0, nil
		}
	}

	for i := range devices {
		if devices[i].name == name {
			return i, nil
		}
	}

	for i := range devices {
		if devices[i].id == name {
			return i, nil
		}
	}

	// "hw:1,0" and "plughw:1,0" refer to the ALSA id ":1,0"
	if _, card, ok := strings.Cut(name, "hw:"); ok {
		for i := range devices {
			if strings.HasSuffix(devices[i].id, ":"+card) {
				return i, nil
			}
		}
	}

	for i := range devices {
		if strings.Contains(devices[i].name, name) {
			return i, nil
		}
	}

	return -1, errors.Newf("no matching audio device found for %q", name).
		Component("myaudio").
		Category(errors.CategoryAudioSource).
		Context("available_devices", len(devices)).
		Build()
}

// decodeDeviceID converts a hex-encoded backend id to text, falling back to the raw id.
func decodeDeviceID(hexStr string) string {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return hexStr
	}
	return strings.TrimRight(string(raw), "\x00")
}
