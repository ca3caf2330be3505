package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildErrorQuery(t *testing.T) {
	stmt, args, err := buildErrorQuery(ErrorQuery{Capture: "cap.pcap", Kind: "DNS_FAILURE", Src: "10.0.0.", Limit: 10})
	require.NoError(t, err)

	assert.Contains(t, stmt, "WHERE Capture = ? AND Kind = ? AND Src LIKE ?")
	assert.True(t, strings.HasSuffix(stmt, "ORDER BY PacketNum, Kind LIMIT ?"))
	assert.Equal(t, []any{"cap.pcap", "DNS_FAILURE", "10.0.0.%", 10}, args)
}

func TestBuildErrorQuery_CaptureOnly(t *testing.T) {
	stmt, args, err := buildErrorQuery(ErrorQuery{Capture: "cap.pcap"})
	require.NoError(t, err)

	assert.NotContains(t, stmt, "LIMIT")
	assert.Equal(t, []any{"cap.pcap"}, args)
}

func TestBuildErrorQuery_Rejects(t *testing.T) {
	_, _, err := buildErrorQuery(ErrorQuery{})
	assert.Error(t, err)

	_, _, err = buildErrorQuery(ErrorQuery{Capture: "cap.pcap", Kind: "Kind; DROP TABLE x"})
	assert.ErrorContains(t, err, "unsupported event kind")
}
