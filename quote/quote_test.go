package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testQuote builds a parsed quote with recognizable field contents.
func testQuote(reportData [64]byte) Quote {
	q := Quote{
		Header: Header{
			Version:            QuoteVersion,
			AttestationKeyType: 2,
			TEEType:            TEETypeTDX,
		},
		Report: TDReport{
			ReportData: reportData,
		},
	}
	for i := range q.Header.QEVendorID {
		q.Header.QEVendorID[i] = byte(i)
	}
	for i := range q.Report.MRTD {
		q.Report.MRTD[i] = 0xa0
	}
	for r := range q.Report.RTMR {
		for i := range q.Report.RTMR[r] {
			q.Report.RTMR[r][i] = byte(0xb0 + r)
		}
	}
	return q
}

// testRawQuote builds the raw byte representation of a quote carrying the
// given report data.
func testRawQuote(reportData [64]byte) []byte {
	q := testQuote(reportData)
	raw := q.Marshal()
	return raw[:]
}

func TestParseQuote(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var reportData [64]byte
	copy(reportData[:], "hello")
	rawQuote := testRawQuote(reportData)

	parsedQuote, err := ParseQuote(rawQuote)
	require.NoError(err)

	assert.EqualValues(QuoteVersion, parsedQuote.Header.Version)
	assert.EqualValues(TEETypeTDX, parsedQuote.Header.TEEType)
	assert.EqualValues(2, parsedQuote.Header.AttestationKeyType)
	assert.Equal(reportData, parsedQuote.Report.ReportData)
	for i := range parsedQuote.Report.MRTD {
		assert.EqualValues(0xa0, parsedQuote.Report.MRTD[i])
	}
	for r := range parsedQuote.Report.RTMR {
		assert.EqualValues(byte(0xb0+r), parsedQuote.Report.RTMR[r][0])
	}
}

func TestParseQuoteSizeBounds(t *testing.T) {
	testCases := map[string]struct {
		quoteLength int
		wantErr     string
	}{
		"empty input": {
			quoteLength: 0,
			wantErr:     "too short",
		},
		"one byte below the minimum": {
			quoteLength: MinQuoteSize - 1,
			wantErr:     "too short",
		},
		"exactly the minimum": {
			quoteLength: MinQuoteSize,
		},
		"quote with trailing signature data": {
			quoteLength: MinQuoteSize + 4321,
		},
		"over 1 MiB": {
			quoteLength: 1048577,
			wantErr:     "too large",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			var reportData [64]byte
			full := testRawQuote(reportData)
			raw := make([]byte, tc.quoteLength)
			copy(raw, full)

			_, err := ParseQuote(raw)
			if tc.wantErr != "" {
				assert.ErrorContains(err, tc.wantErr)
				return
			}
			assert.NoError(err)
		})
	}
}

func TestParseQuoteHeaderGates(t *testing.T) {
	assert := assert.New(t)

	var reportData [64]byte
	rawQuote := testRawQuote(reportData)

	// version 3 is rejected
	badVersion := append([]byte{}, rawQuote...)
	badVersion[0] = 3
	_, err := ParseQuote(badVersion)
	assert.ErrorContains(err, "version")

	// SGX TEE type is rejected
	badTEE := append([]byte{}, rawQuote...)
	badTEE[4] = TEETypeSGX
	_, err = ParseQuote(badTEE)
	assert.ErrorContains(err, "TDX")

	// all other header fields are informational
	informational := append([]byte{}, rawQuote...)
	for i := 8; i < HeaderSize; i++ {
		informational[i] ^= 0xff
	}
	_, err = ParseQuote(informational)
	assert.NoError(err)
}

func TestExtractField(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var reportData [64]byte
	copy(reportData[:], "nonce value")
	rawQuote := testRawQuote(reportData)

	parsedQuote, err := ParseQuote(rawQuote)
	require.NoError(err)

	mrtd, err := ExtractField(rawQuote, FieldMRTD)
	require.NoError(err)
	assert.Equal(parsedQuote.Report.MRTD[:], mrtd)

	for i, field := range []Field{FieldRTMR0, FieldRTMR1, FieldRTMR2, FieldRTMR3} {
		rtmr, err := ExtractField(rawQuote, field)
		require.NoError(err)
		assert.Equal(parsedQuote.Report.RTMR[i][:], rtmr)
	}

	nonce, err := ExtractField(rawQuote, FieldReportData)
	require.NoError(err)
	assert.Equal(parsedQuote.Report.ReportData[:], nonce)

	_, err = ExtractField(rawQuote, Field("MRSEAM"))
	assert.Error(err)

	_, err = ExtractField(rawQuote[:MinQuoteSize-1], FieldMRTD)
	assert.ErrorContains(err, "too small")
}

// TestExtractFieldOffsetPurity verifies that field extraction depends only on
// the field's byte window: flipping any TD report byte outside the five
// measurement windows and the nonce never changes an extracted value.
func TestExtractFieldOffsetPurity(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	fields := []Field{FieldMRTD, FieldRTMR0, FieldRTMR1, FieldRTMR2, FieldRTMR3, FieldReportData}

	var reportData [64]byte
	copy(reportData[:], "hello")
	rawQuote := testRawQuote(reportData)

	want := make(map[Field][]byte)
	for _, field := range fields {
		extracted, err := ExtractField(rawQuote, field)
		require.NoError(err)
		want[field] = extracted
	}

	inWindow := func(i int) bool {
		for _, window := range reportLayout {
			start := HeaderSize + window.offset
			if i >= start && i < start+window.length {
				return true
			}
		}
		return false
	}

	for i := HeaderSize; i < MinQuoteSize; i++ {
		if inWindow(i) {
			continue
		}
		mutated := append([]byte{}, rawQuote...)
		mutated[i] ^= 0xff
		for _, field := range fields {
			extracted, err := ExtractField(mutated, field)
			require.NoError(err)
			assert.Equal(want[field], extracted, "byte %d is outside all field windows", i)
		}
	}
}

func FuzzParseQuote(f *testing.F) {
	var reportData [64]byte
	copy(reportData[:], "hello")
	f.Add(testRawQuote(reportData))
	f.Fuzz(func(t *testing.T, a []byte) {
		assert := assert.New(t)
		assert.NotPanics(func() { _, _ = ParseQuote(a) })
	})
}

func FuzzExtractField(f *testing.F) {
	var reportData [64]byte
	f.Add(testRawQuote(reportData), "MRTD")
	f.Fuzz(func(t *testing.T, a []byte, field string) {
		assert := assert.New(t)
		assert.NotPanics(func() { _, _ = ExtractField(a, Field(field)) })
	})
}
