//go:build !linux

// Package tdx provides access to the Intel TDX guest device.
//
// On non-Linux platforms all operations fail: the guest device only exists
// inside a Linux trust domain.
package tdx

import (
	"errors"
	"os"
)

// GuestDevice is the path to the TDX guest device.
const GuestDevice = "/dev/tdx-guest"

// device is a handle to the TDX guest device.
type device interface {
	Fd() uintptr
}

// Open opens the TDX guest device.
func Open() (*os.File, error) {
	return nil, errors.New("the TDX guest device is only available on linux")
}

// ExtendRTMR extends the RTMR with the given data.
func ExtendRTMR(_ device, _ []byte, _ uint8) error {
	return errors.New("extending rtmrs is only supported on linux")
}

// ReadMeasurements reads the MRTD and RTMRs of a TDX guest.
func ReadMeasurements(_ device) ([5][48]byte, error) {
	return [5][48]byte{}, errors.New("reading measurements is only supported on linux")
}

// GenerateQuote generates a TDX quote for the given user data.
func GenerateQuote(_ device, _ []byte) ([]byte, error) {
	return nil, errors.New("generating quote is only supported on linux")
}
