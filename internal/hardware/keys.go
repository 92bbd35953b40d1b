package hardware

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"robot-service/internal/config"
)

// GPIOKey reads the button from a GPIO input line.
type GPIOKey struct {
	line *gpiocdev.Line
}

func NewGPIOKey(ref config.LineRef) (*GPIOKey, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer(Consumer),
	}
	if ref.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(ref.Chip, ref.Offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to request button %s:%d: %w", ref.Chip, ref.Offset, err)
	}
	return &GPIOKey{line: line}, nil
}

func (k *GPIOKey) Pressed() (bool, error) {
	v, err := k.line.Value()
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

func (k *GPIOKey) Close() error { return k.line.Close() }

// EvdevKey reads one key code from an input event device (gpio-keys).
type EvdevKey struct {
	file *os.File
	code uint16
}

func OpenEvdevKey(path string, code int) (*EvdevKey, error) {
	if code < 0 || code >= keyStateLen*8 {
		return nil, fmt.Errorf("key code %d out of range", code)
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open input device %s: %w", path, err)
	}
	return &EvdevKey{file: f, code: uint16(code)}, nil
}

// Pressed polls the kernel's key state bitmap with EVIOCGKEY.
func (k *EvdevKey) Pressed() (bool, error) {
	buffer := make([]byte, keyStateLen)
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		k.file.Fd(),
		uintptr(eviocgkey),
		uintptr(unsafe.Pointer(&buffer[0])),
	)
	if errno != 0 {
		return false, fmt.Errorf("EVIOCGKEY ioctl failed: %v", errno)
	}
	return keyBit(buffer, k.code), nil
}

func (k *EvdevKey) Close() error { return k.file.Close() }

func keyBit(buffer []byte, code uint16) bool {
	byteOffset := int(code / 8)
	bitOffset := code % 8
	if byteOffset >= len(buffer) {
		return false
	}
	return buffer[byteOffset]&(1<<bitOffset) != 0
}
