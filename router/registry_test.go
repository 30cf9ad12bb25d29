package router

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleRegistry = `2|apnic|20260801|ok
apnic|CN|ipv4|1.0.1.0|256|20110414|allocated
apnic|CN|ipv4|1.0.2.0|512|20110414|allocated
apnic|JP|ipv4|1.0.64.0|16384|20110414|allocated
apnic|CN|ipv6|2400:3900::|32|20120130|allocated
`

func TestParseCNRegistryExtractsMaskedCIDRs(t *testing.T) {
	table, err := ParseCNRegistry(strings.NewReader(sampleRegistry))
	require.NoError(t, err)
	require.Len(t, table, 2)

	require.Equal(t, "1.0.1.0/24", table[0].String())
	require.Equal(t, "1.0.2.0/23", table[1].String())
}

func TestParseCNRegistryMembership(t *testing.T) {
	table, err := ParseCNRegistry(strings.NewReader(sampleRegistry))
	require.NoError(t, err)

	require.True(t, table[0].Contains(net.ParseIP("1.0.1.200")))
	require.False(t, table[0].Contains(net.ParseIP("1.0.64.1")))
}

func TestParseCNRegistrySkipsMalformedLines(t *testing.T) {
	const malformed = "apnic|CN|ipv4|not-an-ip|256|20110414|allocated\n"
	table, err := ParseCNRegistry(strings.NewReader(malformed))
	require.NoError(t, err)
	require.Empty(t, table)
}
