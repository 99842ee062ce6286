package driver

import "errors"

var (
	ErrOutOfDate         = errors.New("surface out of date")
	ErrSuboptimal        = errors.New("surface suboptimal")
	ErrOutOfPoolMemory   = errors.New("descriptor pool out of memory")
	ErrFragmentedPool    = errors.New("descriptor pool fragmented")
	ErrDeviceLost        = errors.New("device lost")
	ErrTimeout           = errors.New("wait timed out")
	ErrOutOfDeviceMemory = errors.New("out of device memory")
	ErrOutOfHostMemory   = errors.New("out of host memory")
)

// IsPoolExhausted reports whether err means the pool cannot serve more sets.
func IsPoolExhausted(err error) bool {
	return errors.Is(err, ErrOutOfPoolMemory) || errors.Is(err, ErrFragmentedPool)
}
