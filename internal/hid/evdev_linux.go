//go:build linux

package hid

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/holoplot/go-evdev"

	"github.com/codefionn/macroscript/internal/logger"
)

// EvdevDevice reads keyboards, mice and game controllers from /dev/input.
type EvdevDevice struct {
	log *logger.Logger

	mu        sync.Mutex
	keyboards []inputDevice
	mice      []inputDevice
	pads      []inputDevice
	open      []inputDevice
	infos     []DeviceInfo
}

type inputDevice struct {
	*evdev.InputDevice
	path string
	// gamepad is set for devices reporting BTN_GAMEPAD; see GamepadButton.
	gamepad bool
}

// NewEvdevDevice creates an evdev backend. Devices are opened by Enumerate.
func NewEvdevDevice(log *logger.Logger) (*EvdevDevice, error) {
	if log == nil {
		log = logger.Nop()
	}
	return &EvdevDevice{log: log}, nil
}

// Enumerate reopens every readable input device and sorts it into
// keyboards, mice and game controllers.
func (d *EvdevDevice) Enumerate() error {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return fmt.Errorf("failed to list input devices: %w", err)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].Path < paths[j].Path })

	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()

	for _, p := range paths {
		raw, err := evdev.Open(p.Path)
		if err != nil {
			d.log.Debug("skipping %s: %v", p.Path, err)
			continue
		}
		dev := inputDevice{InputDevice: raw, path: p.Path}

		var kinds []string
		codes := dev.CapableEvents(evdev.EV_KEY)
		switch {
		case hasCode(codes, evdev.BTN_GAMEPAD) || hasCode(codes, evdev.BTN_JOYSTICK):
			dev.gamepad = hasCode(codes, evdev.BTN_GAMEPAD)
			if len(d.pads) < MaxGamepads {
				d.pads = append(d.pads, dev)
				kinds = append(kinds, "gamepad")
			}
		default:
			if hasCode(codes, evdev.KEY_A) {
				d.keyboards = append(d.keyboards, dev)
				kinds = append(kinds, "keyboard")
			}
			if hasCode(codes, evdev.BTN_LEFT) {
				d.mice = append(d.mice, dev)
				kinds = append(kinds, "mouse")
			}
		}

		if len(kinds) == 0 {
			dev.Close()
			continue
		}
		d.open = append(d.open, dev)
		d.infos = append(d.infos, DeviceInfo{Path: p.Path, Name: p.Name, Kind: strings.Join(kinds, ",")})
	}

	d.log.Debug("enumerated %d keyboards, %d mice, %d gamepads", len(d.keyboards), len(d.mice), len(d.pads))
	return nil
}

// ReadState queries the key and absolute-axis state of every open device.
// Devices that fail to answer are skipped until the next enumeration.
func (d *EvdevDevice) ReadState(st *State) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, dev := range d.keyboards {
		keys, err := dev.State(evdev.EV_KEY)
		if err != nil {
			d.log.Debug("keyboard %s: %v", dev.path, err)
			continue
		}
		for code, down := range keys {
			if c := int(code); down && validKey(c) {
				st.Keys[c] = true
			}
		}
	}

	for _, dev := range d.mice {
		keys, err := dev.State(evdev.EV_KEY)
		if err != nil {
			d.log.Debug("mouse %s: %v", dev.path, err)
			continue
		}
		for code, down := range keys {
			if b := int(code) - int(evdev.BTN_LEFT); down && validMouse(b) {
				st.Mouse[b] = true
			}
		}
	}

	for i, dev := range d.pads {
		readGamepad(dev, &st.Gamepads[i], d.log)
	}
	return nil
}

func readGamepad(dev inputDevice, gp *Gamepad, log *logger.Logger) {
	keys, err := dev.State(evdev.EV_KEY)
	if err != nil {
		log.Debug("gamepad %s: %v", dev.path, err)
		return
	}
	gp.Connected = true
	for code, down := range keys {
		if b, ok := GamepadButton(int(code), dev.gamepad); down && ok {
			gp.Buttons[b] = true
		}
	}

	absInfos, err := dev.AbsInfos()
	if err != nil {
		return
	}
	for code, info := range absInfos {
		if a := int(code) - int(evdev.ABS_X); validAxis(a) {
			gp.Axes[a] = NormalizeAxis(info.Value, info.Minimum, info.Maximum)
		}
	}
	for pov := 0; pov < NumGamepadPOVs; pov++ {
		x := absInfos[evdev.EvCode(int(evdev.ABS_HAT0X)+2*pov)]
		y := absInfos[evdev.EvCode(int(evdev.ABS_HAT0Y)+2*pov)]
		gp.POV[pov] = HatToPOV(sign(x.Value), sign(y.Value))
	}
}

// Devices returns what the last enumeration found.
func (d *EvdevDevice) Devices() []DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DeviceInfo(nil), d.infos...)
}

// Close closes every open device.
func (d *EvdevDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
	return nil
}

func (d *EvdevDevice) closeLocked() {
	for _, dev := range d.open {
		dev.Close()
	}
	d.open = nil
	d.keyboards = nil
	d.mice = nil
	d.pads = nil
	d.infos = nil
}

func hasCode(codes []evdev.EvCode, want evdev.EvCode) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}

func sign(v int32) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

// UinputSender injects key transitions through a virtual uinput keyboard.
// Linux has no per-window key delivery, so the target window is ignored.
type UinputSender struct {
	dev *evdev.InputDevice
	log *logger.Logger
}

// NewUinputSender creates the virtual keyboard. It needs write access to
// /dev/uinput.
func NewUinputSender(log *logger.Logger) (*UinputSender, error) {
	if log == nil {
		log = logger.Nop()
	}
	keys := make([]evdev.EvCode, 0, NumKeys-1)
	for c := 1; c < NumKeys; c++ {
		keys = append(keys, evdev.EvCode(c))
	}

	dev, err := evdev.CreateDevice("macroscript virtual keyboard",
		evdev.InputID{BusType: 0x06, Vendor: 0x1, Product: 0x1, Version: 1},
		map[evdev.EvType][]evdev.EvCode{evdev.EV_KEY: keys})
	if err != nil {
		return nil, fmt.Errorf("failed to create uinput keyboard: %w", err)
	}
	return &UinputSender{dev: dev, log: log}, nil
}

func (s *UinputSender) KeyDown(vk int, target Window) error {
	return s.emit(vk, 1, target)
}

func (s *UinputSender) KeyUp(vk int, target Window) error {
	return s.emit(vk, 0, target)
}

func (s *UinputSender) emit(vk int, value int32, target Window) error {
	if !validKey(vk) {
		return fmt.Errorf("key code %d out of range", vk)
	}
	if target != NoWindow {
		s.log.Debug("ignoring target window %d for key %d", target, vk)
	}

	var now syscall.Timeval
	if err := syscall.Gettimeofday(&now); err != nil {
		return err
	}
	if err := s.dev.WriteOne(&evdev.InputEvent{Time: now, Type: evdev.EV_KEY, Code: evdev.EvCode(vk), Value: value}); err != nil {
		return err
	}
	return s.dev.WriteOne(&evdev.InputEvent{Time: now, Type: evdev.EV_SYN, Code: evdev.SYN_REPORT})
}

// Close destroys the virtual keyboard.
func (s *UinputSender) Close() error {
	return s.dev.Close()
}
