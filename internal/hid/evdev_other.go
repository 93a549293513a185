//go:build !linux

package hid

import "github.com/codefionn/macroscript/internal/logger"

// EvdevDevice is only available on Linux.
type EvdevDevice struct{}

func NewEvdevDevice(*logger.Logger) (*EvdevDevice, error) { return nil, ErrUnsupported }

func (*EvdevDevice) Enumerate() error       { return ErrUnsupported }
func (*EvdevDevice) ReadState(*State) error { return ErrUnsupported }
func (*EvdevDevice) Devices() []DeviceInfo  { return nil }
func (*EvdevDevice) Close() error           { return nil }

// UinputSender is only available on Linux.
type UinputSender struct{}

func NewUinputSender(*logger.Logger) (*UinputSender, error) { return nil, ErrUnsupported }

func (*UinputSender) KeyDown(int, Window) error { return ErrUnsupported }
func (*UinputSender) KeyUp(int, Window) error   { return ErrUnsupported }
func (*UinputSender) Close() error              { return nil }
