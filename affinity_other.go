//go:build !linux

package workqueue

// PinToCPU is not supported on this platform.
func PinToCPU(cpu int) error {
	return ErrPinUnsupported
}
