package core

import (
	"errors"
)

var (
	// ErrSwapchainBooting means the surface went stale and the frame must be skipped.
	ErrSwapchainBooting        = errors.New("swapchain resized or recreated, booting")
	ErrSwapchainFormatChanged  = errors.New("swapchain image or depth format changed across recreation")
	ErrDescriptorPoolExhausted = errors.New("descriptor allocation failed after retrying on a fresh pool")
	ErrInvalidFrameState       = errors.New("invalid frame state")
	ErrDuplicateBinding        = errors.New("duplicate descriptor binding index")
	ErrZeroExtent              = errors.New("drawable extent is zero")
	ErrInvalidArenaCapacity    = errors.New("arena capacity must be greater than zero")
	ErrArenaOverflow           = errors.New("arena reservation exceeds the addressable range")
	ErrArenaDestroyed          = errors.New("arena was destroyed")
	ErrUnknown                 = errors.New("unknown")
)
