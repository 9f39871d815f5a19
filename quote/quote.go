/*
Package quote models the binary format of Intel TDX v4 attestation quotes.

A quote starts with a fixed 48-byte header, immediately followed by the
584-byte TD report that carries the trust domain's measurement registers and
the caller-supplied report data (nonce). Everything after the TD report
(signature and certification data) is outside the scope of this package.

	┌─────────────────────────┐
	│       QuoteHeader       │  bytes 0..47
	│       (48 bytes)        │
	├─────────────────────────┤
	│        TDReport         │  bytes 48..631
	│       (584 bytes)       │
	│                         │
	│  MRTD      @ 136 (+48)  │  offsets relative
	│  RTMR0     @ 328 (+48)  │  to the TD report
	│  RTMR1     @ 376 (+48)  │
	│  RTMR2     @ 424 (+48)  │
	│  RTMR3     @ 472 (+48)  │
	│  ReportData@ 520 (+64)  │
	├─────────────────────────┤
	│   Signature (ignored)   │
	└─────────────────────────┘

Struct layout based on:
https://github.com/intel/SGXDataCenterAttestationPrimitives/blob/c057b236790834cf7e547ebf90da91c53c7ed7f9/QuoteGeneration/quote_wrapper/common/inc/sgx_quote_4.h#L113
https://github.com/intel/linux-sgx/blob/d5e10dfbd7381bcd47eb25d2dc1d2da4e9a91e70/common/inc/sgx_report2.h#L61
*/
package quote

import (
	"encoding/binary"
	"fmt"
)

const (
	// QuoteVersion is the only quote format version this package accepts.
	QuoteVersion = 4

	// TEETypeSGX is the type number referenced in the quote header for SGX quotes.
	TEETypeSGX = 0x0

	// TEETypeTDX is the type number referenced in the quote header for TDX quotes.
	TEETypeTDX = 0x81

	// HeaderSize is the size of the quote header in bytes.
	HeaderSize = 48

	// ReportSize is the size of the TD report in bytes.
	ReportSize = 584

	// MinQuoteSize is the minimal number of bytes a quote must have before
	// any TD report field may be addressed.
	MinQuoteSize = HeaderSize + ReportSize

	// maxQuoteSize bounds the accepted input. Real quotes are a few KiB;
	// anything above 1 MiB is rejected as corrupt.
	maxQuoteSize = 1048576

	// ReportDataSize is the capacity of the caller-supplied report data.
	ReportDataSize = 64

	// MeasurementSize is the size of MRTD and the RTMRs in bytes (SHA384).
	MeasurementSize = 48
)

// Header is the fixed 48-byte prefix of a TDX quote.
type Header struct {
	Version            uint16
	AttestationKeyType uint16
	TEEType            uint32 // 0x0 = SGX, 0x81 = TDX
	Reserved           uint32
	QEVendorID         [16]byte
	UserData           [20]byte
}

// TDReport is the measurement report embedded in a TDX quote, located
// directly after the header.
type TDReport struct {
	TCBSVN         [16]byte
	MRSEAM         [48]byte // SHA384
	MRSIGNERSEAM   [48]byte // SHA384
	SEAMAttributes uint64
	TDAttributes   uint64
	XFAM           uint64
	MRTD           [48]byte    // SHA384
	MRCONFIG       [48]byte    // SHA384
	MROWNER        [48]byte    // SHA384
	MROWNERCONFIG  [48]byte    // SHA384
	RTMR           [4][48]byte // runtime measurements
	ReportData     [64]byte    // caller-supplied nonce, echoed back by the TDX module
}

// Quote is the parsed, trust-relevant part of a TDX quote.
// The signature trailing the TD report is not interpreted.
type Quote struct {
	Header Header
	Report TDReport
}

// Field names a trust-relevant window of the TD report.
type Field string

// Trust-relevant TD report fields.
const (
	FieldMRTD       Field = "MRTD"
	FieldRTMR0      Field = "RTMR0"
	FieldRTMR1      Field = "RTMR1"
	FieldRTMR2      Field = "RTMR2"
	FieldRTMR3      Field = "RTMR3"
	FieldReportData Field = "ReportData"
)

// fieldWindow locates a field inside the TD report.
type fieldWindow struct {
	offset int // relative to the start of the TD report
	length int
}

// reportLayout is the single source of truth for the placement of the
// trust-relevant fields within the TD report.
var reportLayout = map[Field]fieldWindow{
	FieldMRTD:       {offset: 136, length: MeasurementSize},
	FieldRTMR0:      {offset: 328, length: MeasurementSize},
	FieldRTMR1:      {offset: 376, length: MeasurementSize},
	FieldRTMR2:      {offset: 424, length: MeasurementSize},
	FieldRTMR3:      {offset: 472, length: MeasurementSize},
	FieldReportData: {offset: 520, length: ReportDataSize},
}

// ExtractField copies a trust-relevant field out of a raw quote.
// The quote is only required to be structurally large enough; no header
// validation is performed here.
func ExtractField(rawQuote []byte, field Field) ([]byte, error) {
	window, ok := reportLayout[field]
	if !ok {
		return nil, fmt.Errorf("unknown TD report field %q", field)
	}
	if len(rawQuote) < MinQuoteSize {
		return nil, fmt.Errorf("quote is too small to contain a TD report (expected at least: %d bytes, received: %d bytes)", MinQuoteSize, len(rawQuote))
	}
	start := HeaderSize + window.offset
	out := make([]byte, window.length)
	copy(out, rawQuote[start:start+window.length])
	return out, nil
}

// ParseQuote parses the header and TD report of an Intel TDX v4 quote.
// The size bound is checked before any field is addressed, so truncated or
// corrupted input is rejected without out-of-bounds access.
func ParseQuote(rawQuote []byte) (Quote, error) {
	quoteLength := len(rawQuote)
	if quoteLength < MinQuoteSize {
		return Quote{}, fmt.Errorf("quote structure is too short to be parsed (expected at least: %d bytes, received: %d bytes)", MinQuoteSize, quoteLength)
	} else if quoteLength > maxQuoteSize {
		return Quote{}, fmt.Errorf("quote is too large (over 1 MiB, received: %d bytes)", quoteLength)
	}

	header := Header{
		Version:            binary.LittleEndian.Uint16(rawQuote[0:2]),
		AttestationKeyType: binary.LittleEndian.Uint16(rawQuote[2:4]),
		TEEType:            binary.LittleEndian.Uint32(rawQuote[4:8]),
		Reserved:           binary.LittleEndian.Uint32(rawQuote[8:12]),
		QEVendorID:         [16]byte(rawQuote[12:28]),
		UserData:           [20]byte(rawQuote[28:48]),
	}

	if header.Version != QuoteVersion {
		return Quote{}, fmt.Errorf("quote version is not %d (got: %d)", QuoteVersion, header.Version)
	}

	if header.TEEType != TEETypeTDX {
		return Quote{}, fmt.Errorf("quote does not appear to be a TDX quote (expected TEEType: 0x%08x, got: 0x%08x)", TEETypeTDX, header.TEEType)
	}

	report := TDReport{
		TCBSVN:         [16]byte(rawQuote[48:64]),
		MRSEAM:         [48]byte(rawQuote[64:112]),
		MRSIGNERSEAM:   [48]byte(rawQuote[112:160]),
		SEAMAttributes: binary.LittleEndian.Uint64(rawQuote[160:168]),
		TDAttributes:   binary.LittleEndian.Uint64(rawQuote[168:176]),
		XFAM:           binary.LittleEndian.Uint64(rawQuote[176:184]),
		MRTD:           [48]byte(rawQuote[184:232]),
		MRCONFIG:       [48]byte(rawQuote[232:280]),
		MROWNER:        [48]byte(rawQuote[280:328]),
		MROWNERCONFIG:  [48]byte(rawQuote[328:376]),
		RTMR:           [4][48]byte{[48]byte(rawQuote[376:424]), [48]byte(rawQuote[424:472]), [48]byte(rawQuote[472:520]), [48]byte(rawQuote[520:568])},
		ReportData:     [64]byte(rawQuote[568:632]),
	}

	return Quote{
		Header: header,
		Report: report,
	}, nil
}
