//go:build linux

// Package tdx provides access to the Intel TDX guest device.
//
// It creates TDREPORTs, requests signed quotes from the Quote Generation
// Service (QGS) and extends runtime measurement registers, all through ioctl
// calls on /dev/tdx-guest.
package tdx

import (
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"github.com/vtolstov/go-ioctl"
	"golang.org/x/sys/unix"
)

const (
	// GuestDevice is the path to the TDX guest device.
	GuestDevice = "/dev/tdx-guest"
	// requestBufferSize is the size of the quote request buffer.
	// https://github.com/intel/SGXDataCenterAttestationPrimitives/blob/71557c7d1d869b6bd6f95566c051cbd098549509/QuoteGeneration/quote_wrapper/tdx_attest/tdx_attest.c#L103
	requestBufferSize = 4 * 4 * 1024
	// tdReportSize is the size of a TDREPORT.
	tdReportSize = 1024
	// qgsMessageHeaderSize is the serialized size of a QGS message header.
	qgsMessageHeaderSize = 16
	// quoteHeaderSize is the serialized size of the transfer header preceding
	// the QGS message in the quote request buffer (tdx_quote_hdr: version u64,
	// status u64, in_len u32, out_len u32).
	quoteHeaderSize = 24
)

// QGS message types: https://github.com/intel/SGXDataCenterAttestationPrimitives/blob/09666b3b14147145232ea4f28d85762ca5da3c5d/QuoteGeneration/quote_wrapper/qgs_msg_lib/inc/qgs_msg_lib.h#L63-L69
const (
	qgsGetQuoteRequestType = iota
	qgsGetQuoteResponseType
	qgsGetCollateralRequestType
	qgsGetCollateralResponseType
)

// IOCTL calls for report creation, quote generation and RTMR extension.
// https://github.com/intel/SGXDataCenterAttestationPrimitives/blob/c057b236790834cf7e547ebf90da91c53c7ed7f9/QuoteGeneration/quote_wrapper/tdx_attest/tdx_attest.c#L53-L56
var (
	requestReport = ioctl.IOWR('T', 0x01, 8)
	requestQuote  = ioctl.IOR('T', 0x02, 8)
	// TDX_CMD_EXTEND_RTMR passes the event inline, not by pointer.
	// https://github.com/torvalds/linux/blob/master/include/uapi/linux/tdx-guest.h
	extendRTMR = ioctl.IOR('T', 0x03, unsafe.Sizeof(extendRTMREvent{}))
)

// device is a handle to the TDX guest device.
type device interface {
	Fd() uintptr
}

// Open opens the TDX guest device.
// The caller is responsible for closing the returned handle.
func Open() (*os.File, error) {
	handle, err := os.Open(GuestDevice)
	if err != nil {
		return nil, fmt.Errorf("opening TDX guest device: %w", err)
	}
	return handle, nil
}

// ExtendRTMR extends the RTMR with the given index by the SHA384 digest of
// extendData.
func ExtendRTMR(tdx device, extendData []byte, index uint8) error {
	extendEvent := extendRTMREvent{
		data:  sha512.Sum384(extendData),
		index: index,
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, tdx.Fd(), extendRTMR, uintptr(unsafe.Pointer(&extendEvent))); errno != 0 {
		return fmt.Errorf("extending RTMR %d: %w", index, errno)
	}
	return nil
}

// ReadMeasurements reads the MRTD and RTMRs of a TDX guest.
func ReadMeasurements(tdx device) ([5][48]byte, error) {
	// TDX does not support directly reading RTMRs.
	// Instead, create a new report with zeroed report data,
	// and read the RTMRs and MRTD from the report.
	report, err := createReport(tdx, [64]byte{})
	if err != nil {
		return [5][48]byte{}, fmt.Errorf("creating report: %w", err)
	}

	// MRTD is located at offset 528 in the report.
	// RTMRs start at offset 720 in the report.
	// All measurements are 48 bytes long.
	measurements := [5][48]byte{
		[48]byte(report[528:576]), // MRTD
		[48]byte(report[720:768]), // RTMR0
		[48]byte(report[768:816]), // RTMR1
		[48]byte(report[816:864]), // RTMR2
		[48]byte(report[864:912]), // RTMR3
	}

	return measurements, nil
}

// GenerateQuote asks the Quote Generation Service for a signed quote over a
// TDREPORT carrying the given user data. User data may not be longer than
// 64 bytes; shorter input is zero-padded.
//
// No attestation key ID list is sent, letting the platform pick its default
// signing key. The returned slice is owned by the caller.
func GenerateQuote(tdx device, userData []byte) ([]byte, error) {
	if len(userData) > 64 {
		return nil, fmt.Errorf("user data must not be longer than 64 bytes, received %d bytes", len(userData))
	}

	var reportData [64]byte
	copy(reportData[:], userData)
	tdReport, err := createReport(tdx, reportData)
	if err != nil {
		return nil, fmt.Errorf("creating report: %w", err)
	}

	// The kernel copies the request buffer in and out as one contiguous blob,
	// so the transfer header and the QGS message must share a single buffer.
	buf := serializeQuoteRequest(tdReport)
	request := quoteRequest{
		blob:   uintptr(unsafe.Pointer(&buf[0])),
		length: requestBufferSize,
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, tdx.Fd(), requestQuote, uintptr(unsafe.Pointer(&request))); errno != 0 {
		return nil, fmt.Errorf("generating quote: %w", errno)
	}

	if status := binary.LittleEndian.Uint64(buf[8:16]); status != 0 {
		return nil, fmt.Errorf("quote generation failed with status 0x%x", status)
	}
	outputLength := binary.LittleEndian.Uint32(buf[20:24])

	return parseQGSResponse(buf[quoteHeaderSize:], outputLength)
}

// serializeQuoteRequest builds the contiguous quote request buffer handed to
// the kernel: the transfer header (tdx_quote_hdr), then the serialized QGS
// get-quote message with its 4-byte size prefix, message header, report size,
// ID list size and the report itself. An empty ID list means no explicit
// attestation key preference. The kernel overwrites the buffer in place with
// the QGS response.
// https://github.com/intel/SGXDataCenterAttestationPrimitives/blob/71557c7d1d869b6bd6f95566c051cbd098549509/QuoteGeneration/quote_wrapper/tdx_attest/tdx_attest.c#L84-L95
// https://github.com/intel/SGXDataCenterAttestationPrimitives/blob/09666b3b14147145232ea4f28d85762ca5da3c5d/QuoteGeneration/quote_wrapper/qgs_msg_lib/inc/qgs_msg_lib.h#L79-L84
func serializeQuoteRequest(tdReport [tdReportSize]byte) []byte {
	messageSize := uint32(qgsMessageHeaderSize + 4 + 4 + tdReportSize)

	buf := make([]byte, requestBufferSize)
	binary.LittleEndian.PutUint64(buf[0:8], 1)  // version
	binary.LittleEndian.PutUint64(buf[8:16], 0) // status, filled in by the kernel
	binary.LittleEndian.PutUint32(buf[16:20], 4+messageSize)
	binary.LittleEndian.PutUint32(buf[20:24], 0) // output length, filled in by the kernel

	message := buf[quoteHeaderSize:]
	binary.LittleEndian.PutUint32(message[0:4], messageSize)
	binary.LittleEndian.PutUint16(message[4:6], 1) // major version
	binary.LittleEndian.PutUint16(message[6:8], 0) // minor version
	binary.LittleEndian.PutUint32(message[8:12], qgsGetQuoteRequestType)
	binary.LittleEndian.PutUint32(message[12:16], messageSize)
	binary.LittleEndian.PutUint32(message[16:20], 0) // error code
	binary.LittleEndian.PutUint32(message[20:24], tdReportSize)
	binary.LittleEndian.PutUint32(message[24:28], 0) // ID list size
	copy(message[28:], tdReport[:])

	return buf
}

// parseQGSResponse extracts the quote from the response the Quote Generation
// Service wrote back into the request buffer.
func parseQGSResponse(data []byte, outputLength uint32) ([]byte, error) {
	if int64(outputLength) > int64(len(data)) {
		return nil, fmt.Errorf("QGS response length out of bounds (claimed: %d bytes, buffer: %d bytes)", outputLength, len(data))
	}
	if outputLength < 4+qgsMessageHeaderSize+8 {
		return nil, fmt.Errorf("QGS response is too short to be parsed (received: %d bytes)", outputLength)
	}

	messageSize := binary.LittleEndian.Uint32(data[0:4])
	if 4+uint64(messageSize) > uint64(outputLength) {
		return nil, fmt.Errorf("QGS message size is either incorrect or data is truncated (claimed: %d bytes, left: %d bytes)", messageSize, outputLength-4)
	}
	response := data[4 : 4+messageSize]
	if len(response) < qgsMessageHeaderSize+8 {
		return nil, fmt.Errorf("QGS message is too short to be parsed (received: %d bytes)", len(response))
	}

	messageType := binary.LittleEndian.Uint32(response[4:8])
	if messageType != qgsGetQuoteResponseType {
		return nil, fmt.Errorf("unexpected QGS message type (expected: %d, got: %d)", qgsGetQuoteResponseType, messageType)
	}
	if errorCode := binary.LittleEndian.Uint32(response[12:16]); errorCode != 0 {
		return nil, fmt.Errorf("QGS returned error code 0x%x", errorCode)
	}

	selectedIDSize := binary.LittleEndian.Uint32(response[16:20])
	quoteSize := binary.LittleEndian.Uint32(response[20:24])
	quoteStart := uint64(qgsMessageHeaderSize) + 8 + uint64(selectedIDSize)
	if quoteStart+uint64(quoteSize) > uint64(len(response)) {
		return nil, fmt.Errorf("QGS quote size is either incorrect or data is truncated (requires: %d bytes, left: %d bytes)", quoteStart+uint64(quoteSize), len(response))
	}

	// Copy the quote out of the request scratch buffer so the returned slice
	// does not alias it.
	quote := make([]byte, quoteSize)
	copy(quote, response[quoteStart:quoteStart+uint64(quoteSize)])
	return quote, nil
}

func createReport(tdx device, reportData [64]byte) ([tdReportSize]byte, error) {
	var tdReport [tdReportSize]byte
	request := reportRequest{
		subtype:          0,
		reportData:       &reportData,
		reportDataLength: 64,
		tdReport:         &tdReport,
		tdReportLength:   tdReportSize,
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, tdx.Fd(), requestReport, uintptr(unsafe.Pointer(&request))); errno != 0 {
		return [tdReportSize]byte{}, fmt.Errorf("creating TDX report: %w", errno)
	}
	return tdReport, nil
}

// extendRTMREvent mirrors struct tdx_extend_rtmr_req: the SHA384 digest to
// extend with, followed by the RTMR index. 49 bytes, no padding.
type extendRTMREvent struct {
	data  [48]byte
	index uint8
}

/*
reportRequest is the structure used to create TDX reports.

	#
	# Reference: Structure of tdx_report_req
	#
	# struct tdx_report_req {
	#        __u8  subtype;
	#        __u64 reportdata;
	#        __u32 rpd_len;
	#        __u64 tdreport;
	#        __u32 tdr_len;
	# };
	#
*/
type reportRequest struct {
	subtype          uint8
	reportData       *[64]byte
	reportDataLength uint32
	tdReport         *[tdReportSize]byte
	tdReportLength   uint32
}

// https://github.com/intel/SGXDataCenterAttestationPrimitives/blob/c057b236790834cf7e547ebf90da91c53c7ed7f9/QuoteGeneration/quote_wrapper/tdx_attest/tdx_attest.c#L82-L86
type quoteRequest struct {
	blob   uintptr
	length uintptr // size_t / uint64_t
}
