package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatDailyCode(t *testing.T) {
	require.Equal(t, "CMP-261019-001AB", FormatDailyCode("CMP", "261019", 1, "AB"))
	require.Equal(t, "JOB-261019-00ZXY", FormatDailyCode("JOB", "261019", 35, "XY"))
	require.Equal(t, "JOB-261019-100", FormatDailyCode("JOB", "261019", 36*36, ""))
}

func TestRandomAlphaNumeric(t *testing.T) {
	s, err := randomAlphaNumeric(8)
	require.NoError(t, err)
	require.Len(t, s, 8)
	require.NotContains(t, s, "0")
	require.NotContains(t, s, "O")
}
