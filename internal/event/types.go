package event

// Type identifies what an Event describes.
type Type int

const (
	TypeCustom Type = iota
	TypeSocketConnected
	TypeSocketReceived
	TypeSocketDisconnected
	TypeSocketError
	TypeKeyPressed
	TypeKeyReleased
	TypeMousePressed
	TypeMouseReleased
	TypeGamepadPressed
	TypeGamepadReleased
	TypeGamepadPOVChanged
	TypeGamepadAxisChanged
	TypeFocusChanged
	TypeConsoleResized
	TypeError
	TypeWarning
	TypeQuit
)

var typeNames = map[Type]string{
	TypeCustom:             "custom",
	TypeSocketConnected:    "socketconnected",
	TypeSocketReceived:     "socketreceived",
	TypeSocketDisconnected: "socketdisconnected",
	TypeSocketError:        "socketerror",
	TypeKeyPressed:         "keypressed",
	TypeKeyReleased:        "keyreleased",
	TypeMousePressed:       "mousepressed",
	TypeMouseReleased:      "mousereleased",
	TypeGamepadPressed:     "gamepadpressed",
	TypeGamepadReleased:    "gamepadreleased",
	TypeGamepadPOVChanged:  "gamepadpovchanged",
	TypeGamepadAxisChanged: "gamepadaxischanged",
	TypeFocusChanged:       "focuschanged",
	TypeConsoleResized:     "consoleresized",
	TypeError:              "error",
	TypeWarning:            "warning",
	TypeQuit:               "quit",
}

// String returns the name scripts see for the type
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseType maps a script-visible name back to a built-in Type. Custom event
// names report false.
func ParseType(name string) (Type, bool) {
	for t, n := range typeNames {
		if t != TypeCustom && n == name {
			return t, true
		}
	}
	return TypeCustom, false
}
