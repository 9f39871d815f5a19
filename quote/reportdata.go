package quote

import (
	"encoding/hex"
	"fmt"
)

// ReportData is the fixed-capacity caller-supplied payload bound into a
// quote. Unused trailing bytes are zero.
type ReportData [ReportDataSize]byte

// EncodeReportData builds a ReportData buffer from caller input.
//
// In raw mode the input's bytes are copied as-is. Input longer than the
// capacity is truncated to ReportDataSize bytes; this is reported through the
// truncated return value and is not an error.
//
// In hex mode the input must be a valid even-length hex string decoding to at
// most ReportDataSize bytes. Any malformation is an error and no partial
// buffer is produced.
func EncodeReportData(input string, isHex bool) (data ReportData, truncated bool, err error) {
	if !isHex {
		if len(input) > ReportDataSize {
			truncated = true
		}
		copy(data[:], input)
		return data, truncated, nil
	}

	if len(input)%2 != 0 || len(input)/2 > ReportDataSize {
		return ReportData{}, false, fmt.Errorf("invalid hex string length (%d bytes, max %d bytes)", len(input)/2, ReportDataSize)
	}
	decoded, err := hex.DecodeString(input)
	if err != nil {
		return ReportData{}, false, fmt.Errorf("decoding hex report data: %w", err)
	}
	copy(data[:], decoded)
	return data, false, nil
}
