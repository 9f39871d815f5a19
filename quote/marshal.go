package quote

import (
	"encoding/binary"
)

// Marshal serializes a quote header into the binary representation found at
// the start of a raw quote.
func (h *Header) Marshal() [HeaderSize]byte {
	version := make([]byte, 2)
	attestationKeyType := make([]byte, 2)
	teeType := make([]byte, 4)
	reserved := make([]byte, 4)
	binary.LittleEndian.PutUint16(version, h.Version)
	binary.LittleEndian.PutUint16(attestationKeyType, h.AttestationKeyType)
	binary.LittleEndian.PutUint32(teeType, h.TEEType)
	binary.LittleEndian.PutUint32(reserved, h.Reserved)

	var result [HeaderSize]byte
	copy(result[0:2], version)
	copy(result[2:4], attestationKeyType)
	copy(result[4:8], teeType)
	copy(result[8:12], reserved)
	copy(result[12:28], h.QEVendorID[:])
	copy(result[28:48], h.UserData[:])

	return result
}

// Marshal serializes a TD report into the binary representation found after
// the header of a raw quote.
func (r *TDReport) Marshal() [ReportSize]byte {
	seamAttributes := make([]byte, 8)
	tdAttributes := make([]byte, 8)
	xfam := make([]byte, 8)
	binary.LittleEndian.PutUint64(seamAttributes, r.SEAMAttributes)
	binary.LittleEndian.PutUint64(tdAttributes, r.TDAttributes)
	binary.LittleEndian.PutUint64(xfam, r.XFAM)

	var result [ReportSize]byte
	copy(result[0:16], r.TCBSVN[:])
	copy(result[16:64], r.MRSEAM[:])
	copy(result[64:112], r.MRSIGNERSEAM[:])
	copy(result[112:120], seamAttributes)
	copy(result[120:128], tdAttributes)
	copy(result[128:136], xfam)
	copy(result[136:184], r.MRTD[:])
	copy(result[184:232], r.MRCONFIG[:])
	copy(result[232:280], r.MROWNER[:])
	copy(result[280:328], r.MROWNERCONFIG[:])
	copy(result[328:376], r.RTMR[0][:])
	copy(result[376:424], r.RTMR[1][:])
	copy(result[424:472], r.RTMR[2][:])
	copy(result[472:520], r.RTMR[3][:])
	copy(result[520:584], r.ReportData[:])

	return result
}

// Marshal serializes the parsed part of a quote back into raw bytes.
// The result is exactly MinQuoteSize bytes long; any signature data the
// original quote carried is not reproduced.
func (q *Quote) Marshal() [MinQuoteSize]byte {
	header := q.Header.Marshal()
	report := q.Report.Marshal()

	var result [MinQuoteSize]byte
	copy(result[0:HeaderSize], header[:])
	copy(result[HeaderSize:], report[:])

	return result
}
