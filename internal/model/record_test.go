// internal/model/record_test.go
package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateScanCode(t *testing.T) {
	assert.NoError(t, ValidateScanCode("ABC123"))
	assert.NoError(t, ValidateScanCode("dm-0042/B"))

	assert.Error(t, ValidateScanCode(""))
	assert.Error(t, ValidateScanCode("HAS SPACE"))
	assert.Error(t, ValidateScanCode("tab\there"))

	var formatErr *ScanFormatError
	assert.ErrorAs(t, ValidateScanCode(""), &formatErr)
}

func TestNormalizeMAC(t *testing.T) {
	mac, err := NormalizeMAC("02:00:00:00:00:0A")
	require.NoError(t, err)
	assert.Equal(t, "02:00:00:00:00:0a", mac)

	mac, err = NormalizeMAC("  AA:BB:CC:DD:EE:FF ")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", mac)

	_, err = NormalizeMAC("02-00-00-00-00-01")
	assert.Error(t, err)
	_, err = NormalizeMAC("02:00:00:00:00")
	assert.Error(t, err)
	_, err = NormalizeMAC("not a mac")
	assert.Error(t, err)
}

func TestScanResultComplete(t *testing.T) {
	var sr ScanResult
	assert.False(t, sr.Complete())

	sr.Codes = append(sr.Codes, "TOP-1")
	assert.False(t, sr.Complete())

	sr.Codes = append(sr.Codes, "BOT-2")
	assert.True(t, sr.Complete())
}

func TestServerRecordContainsMAC(t *testing.T) {
	record := &ServerRecord{
		Serial: "S3R14LNUM83R",
		MACs:   []string{"02:00:00:00:00:01", "02:00:00:00:00:02"},
	}

	assert.True(t, record.ContainsMAC("02:00:00:00:00:01"))
	assert.True(t, record.ContainsMAC("02:00:00:00:00:02"))
	assert.True(t, record.ContainsMAC("02:00:00:00:00:02"))
	assert.False(t, record.ContainsMAC("02:00:00:00:00:03"))
	assert.False(t, record.ContainsMAC("garbage"))
}

func TestServerRecordMatchesMACsOrderAndCaseInsensitive(t *testing.T) {
	record := &ServerRecord{
		Serial: "S3R14LNUM83R",
		MACs:   []string{"02:00:00:00:00:01", "02:00:00:00:00:02"},
	}

	assert.True(t, record.MatchesMACs([]string{"02:00:00:00:00:02", "02:00:00:00:00:01"}))
	assert.True(t, record.MatchesMACs([]string{"02:00:00:00:00:01", "02:00:00:00:00:02"}))

	// Duplicates collapse
	assert.True(t, record.MatchesMACs([]string{
		"02:00:00:00:00:01", "02:00:00:00:00:01", "02:00:00:00:00:02",
	}))
}

func TestServerRecordMatchesMACsExactSet(t *testing.T) {
	record := &ServerRecord{
		Serial: "SER",
		MACs:   []string{"02:00:00:00:00:01", "02:00:00:00:00:02"},
	}

	// Subset does not match
	assert.False(t, record.MatchesMACs([]string{"02:00:00:00:00:01"}))
	// Superset does not match
	assert.False(t, record.MatchesMACs([]string{
		"02:00:00:00:00:01", "02:00:00:00:00:02", "02:00:00:00:00:03",
	}))
	assert.False(t, record.MatchesMACs(nil))
}

func TestMACPatternFindsEmbeddedAddresses(t *testing.T) {
	line := "eth0: link up, hwaddr 02:00:00:00:00:01 (and 02:00:00:00:00:02)"
	found := MACPattern.FindAllString(line, -1)
	require.Len(t, found, 2)
	assert.Equal(t, "02:00:00:00:00:01", found[0])
}

func TestDefaultTestCasesStartIdle(t *testing.T) {
	cases := DefaultTestCases()
	require.Len(t, cases, 4)
	for _, tc := range cases {
		assert.Equal(t, CaseIdle, tc.Result)
		assert.NotEmpty(t, tc.Description)
	}
}
