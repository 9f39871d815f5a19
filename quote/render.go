package quote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Nonce rendering treats the report data like a C string: the value ends at
// the first zero byte. If every byte of that prefix is printable ASCII (or
// whitespace), the nonce is presented as text, otherwise as hex.

// NonceValue is the outcome of the printable-or-hex heuristic applied to the
// report data of a quote.
type NonceValue struct {
	// Text is the zero-terminated prefix decoded as ASCII text.
	// Empty if the prefix is not textual.
	Text string
	// IsText reports whether the prefix passed the printable check and was
	// non-empty.
	IsText bool
	// Hex is the zero-terminated prefix as undelimited uppercase hex.
	Hex string
}

// String collapses the nonce to a single value: the decoded text if the
// prefix is textual, the hex rendering otherwise.
func (n NonceValue) String() string {
	if n.IsText {
		return n.Text
	}
	return n.Hex
}

// ScanNonce applies the printable-or-hex heuristic to report data.
func ScanNonce(reportData [ReportDataSize]byte) NonceValue {
	prefix := reportData[:]
	if i := bytes.IndexByte(prefix, 0); i >= 0 {
		prefix = reportData[:i]
	}

	isText := len(prefix) > 0
	for _, b := range prefix {
		if !printableASCII(b) {
			isText = false
			break
		}
	}

	value := NonceValue{
		IsText: isText,
		Hex:    fmt.Sprintf("%X", prefix),
	}
	if isText {
		value.Text = string(prefix)
	}
	return value
}

// printableASCII mirrors isprint/isspace in the C locale. Bytes above 0x7E
// are never considered printable.
func printableASCII(b byte) bool {
	if b >= 0x20 && b <= 0x7e {
		return true
	}
	switch b {
	case '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// FormatMeasurement renders a 48-byte measurement register as uppercase hex,
// 16 bytes per line, with a space after every 4th byte within a line.
func FormatMeasurement(name string, measurement [MeasurementSize]byte) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteString(": ")
	for i, b := range measurement {
		fmt.Fprintf(&sb, "%02X", b)
		if i%16 == 15 {
			sb.WriteByte('\n')
		} else if i%4 == 3 {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// RenderHuman renders a parsed quote for human consumption: a header summary,
// the nonce (as text when it is textual, always as hex), and the five
// measurement registers.
func RenderHuman(q Quote) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Quote Header: version=%d, tee_type=0x%08x\n", q.Header.Version, q.Header.TEEType)

	nonce := ScanNonce(q.Report.ReportData)
	if nonce.IsText {
		fmt.Fprintf(&sb, "Nonce (text): %s\n", nonce.Text)
	}
	fmt.Fprintf(&sb, "Nonce (hex): %s\n", nonce.Hex)

	sb.WriteString(FormatMeasurement("MRTD", q.Report.MRTD))
	for i, rtmr := range q.Report.RTMR {
		sb.WriteString(FormatMeasurement(fmt.Sprintf("RTMR%d", i), rtmr))
	}
	return sb.String()
}

// quoteJSON is the structured rendering of a parsed quote.
type quoteJSON struct {
	Nonce string    `json:"nonce"`
	MRTD  string    `json:"MRTD"`
	RTMRs rtmrsJSON `json:"RTMRs"`
}

type rtmrsJSON struct {
	RTMR0 string `json:"RTMR0"`
	RTMR1 string `json:"RTMR1"`
	RTMR2 string `json:"RTMR2"`
	RTMR3 string `json:"RTMR3"`
}

// RenderJSON renders a parsed quote as a JSON object with the nonce collapsed
// through the printable-or-hex heuristic and the measurement registers as
// undelimited uppercase hex.
func RenderJSON(q Quote) ([]byte, error) {
	out := quoteJSON{
		Nonce: ScanNonce(q.Report.ReportData).String(),
		MRTD:  fmt.Sprintf("%X", q.Report.MRTD[:]),
		RTMRs: rtmrsJSON{
			RTMR0: fmt.Sprintf("%X", q.Report.RTMR[0][:]),
			RTMR1: fmt.Sprintf("%X", q.Report.RTMR[1][:]),
			RTMR2: fmt.Sprintf("%X", q.Report.RTMR[2][:]),
			RTMR3: fmt.Sprintf("%X", q.Report.RTMR[3][:]),
		},
	}
	rendered, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling quote fields: %w", err)
	}
	return rendered, nil
}
