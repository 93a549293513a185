package hid

import "math"

const (
	// NumKeys covers the keyboard key codes.
	NumKeys = 256
	// NumMouseButtons covers left, right, middle, side, extra, forward, back and task.
	NumMouseButtons = 8
	MaxGamepads     = 4

	NumGamepadButtons = 32
	NumGamepadAxes    = 8
	NumGamepadPOVs    = 4

	// POVCentered is the value of a hat switch that is not pushed.
	POVCentered = -1
)

// Gamepad is the raw state of one game controller. Axes are normalized to
// [-1, 1]; POV values are in hundredths of a degree clockwise from up, or
// POVCentered.
type Gamepad struct {
	Connected bool
	Buttons   [NumGamepadButtons]bool
	Axes      [NumGamepadAxes]float64
	POV       [NumGamepadPOVs]int
}

// State is one snapshot of every input device.
type State struct {
	Keys     [NumKeys]bool
	Mouse    [NumMouseButtons]bool
	Gamepads [MaxGamepads]Gamepad
}

// Reset clears s to "nothing held".
func (s *State) Reset() {
	*s = State{}
	for i := range s.Gamepads {
		for j := range s.Gamepads[i].POV {
			s.Gamepads[i].POV[j] = POVCentered
		}
	}
}

// HatToPOV converts a hat switch's x/y deflection (-1, 0 or 1 each, y
// pointing down) into a POV value.
func HatToPOV(x, y int) int {
	if x == 0 && y == 0 {
		return POVCentered
	}
	deg := math.Atan2(float64(x), float64(-y)) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return int(math.Round(deg)) * 100
}

// Linux key codes of the first joystick button (BTN_TRIGGER) and the first
// gamepad button (BTN_SOUTH).
const (
	codeBtnJoystick = 0x120
	codeBtnGamepad  = 0x130
)

// GamepadButton maps a Linux key code onto a button index. Devices that
// report BTN_GAMEPAD are numbered from BTN_SOUTH, so the face buttons are
// 0-3 (south, east, north, west by code order) followed by the shoulder,
// select/start and thumb buttons. Plain joysticks are numbered from
// BTN_TRIGGER.
func GamepadButton(code int, gamepad bool) (int, bool) {
	base := codeBtnJoystick
	if gamepad {
		base = codeBtnGamepad
	}
	b := code - base
	return b, validButton(b)
}

// NormalizeAxis maps value from [lo, hi] onto [-1, 1].
func NormalizeAxis(value, lo, hi int32) float64 {
	if hi <= lo {
		return 0
	}
	v := 2*float64(value-lo)/float64(hi-lo) - 1
	return math.Max(-1, math.Min(1, v))
}

func validKey(k int) bool    { return k >= 0 && k < NumKeys }
func validMouse(b int) bool  { return b >= 0 && b < NumMouseButtons }
func validPad(pad int) bool  { return pad >= 0 && pad < MaxGamepads }
func validButton(b int) bool { return b >= 0 && b < NumGamepadButtons }
func validAxis(a int) bool   { return a >= 0 && a < NumGamepadAxes }
func validPOV(p int) bool    { return p >= 0 && p < NumGamepadPOVs }
