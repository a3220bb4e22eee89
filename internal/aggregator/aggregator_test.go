package aggregator

import (
	"math/rand"
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pulso/internal/core"
	"firestige.xyz/pulso/internal/privacy"
)

func rec(addr string, port uint16) core.ConnectionRecord {
	return core.ConnectionRecord{
		SrcIP:     netip.MustParseAddr(addr),
		DstPort:   port,
		Timestamp: time.Now(),
	}
}

func TestProcessReturnsRunningTotal(t *testing.T) {
	a := New()
	assert.Equal(t, uint64(1), a.Process(rec("10.0.0.1", 80)))
	assert.Equal(t, uint64(2), a.Process(rec("10.0.0.1", 80)))
	assert.Equal(t, uint64(3), a.Process(rec("10.0.0.2", 443)))
	assert.Equal(t, uint64(3), a.Total())
	assert.Equal(t, 2, a.Len())
}

func TestConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := New()

	const n = 5000
	for i := 0; i < n; i++ {
		addr := netip.AddrFrom4([4]byte{10, 0, byte(rng.Intn(4)), byte(rng.Intn(8))})
		a.Process(core.ConnectionRecord{SrcIP: addr, DstPort: uint16(rng.Intn(16))})
	}
	require.Equal(t, uint64(n), a.Total())

	var sum uint64
	for _, c := range a.counts {
		sum += c
	}
	assert.Equal(t, uint64(n), sum)

	r, err := a.Render(privacy.Plain{})
	require.NoError(t, err)
	assert.Equal(t, uint64(n), r.Total)

	var rendered uint64
	for _, g := range r.Groups {
		rendered += g.Total
	}
	assert.Equal(t, uint64(n), rendered)
}

func TestGroupTotalMatchesPorts(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := New()
	for i := 0; i < 1000; i++ {
		a.Process(rec("192.0.2."+strconv.Itoa(rng.Intn(10)), uint16(1+rng.Intn(5))))
	}

	r, err := a.Render(privacy.Plain{})
	require.NoError(t, err)

	for _, line := range r.Lines() {
		fields := strings.Fields(line)
		head := fields[0]
		total, err := strconv.ParseUint(head[strings.LastIndexByte(head, ':')+1:], 10, 64)
		require.NoError(t, err)

		var sum uint64
		for _, f := range fields[1:] {
			c, err := strconv.ParseUint(f[strings.IndexByte(f, ':')+1:], 10, 64)
			require.NoError(t, err)
			sum += c
		}
		assert.Equal(t, total, sum, "line %q", line)
	}
}

func TestRenderOrdering(t *testing.T) {
	a := New()
	for i := 0; i < 3; i++ {
		a.Process(rec("10.0.0.1", 22))
	}
	a.Process(rec("10.0.0.1", 443))
	a.Process(rec("10.0.0.1", 80))
	a.Process(rec("10.0.0.2", 8080))

	r, err := a.Render(privacy.Plain{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"10.0.0.1:5 22:3 80:1 443:1",
		"10.0.0.2:1 8080:1",
	}, r.Lines())
}

func TestRenderTieBreakByAddress(t *testing.T) {
	a := New()
	a.Process(rec("::1", 80))
	a.Process(rec("10.0.0.9", 80))
	a.Process(rec("10.0.0.3", 80))
	a.Process(rec("2001:db8::1", 80))

	r, err := a.Render(privacy.Plain{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"10.0.0.3:1 80:1",
		"10.0.0.9:1 80:1",
		"::1:1 80:1",
		"2001:db8::1:1 80:1",
	}, r.Lines())
}

func TestRenderMultiPortIPv6(t *testing.T) {
	a := New()
	a.Process(rec("::1", 9001))
	a.Process(rec("::1", 9000))

	r, err := a.Render(privacy.Plain{})
	require.NoError(t, err)
	assert.Equal(t, []string{"::1:2 9000:1 9001:1"}, r.Lines())
}

func TestRenderAnonymized(t *testing.T) {
	tok, err := privacy.NewTokenizer("secret")
	require.NoError(t, err)

	a := New()
	a.Process(rec("127.0.0.1", 12345))
	a.Process(rec("127.0.0.1", 12345))

	r, err := a.Render(tok)
	require.NoError(t, err)

	want := tok.Protect(netip.MustParseAddr("127.0.0.1")) + ":2 12345:2"
	assert.Equal(t, []string{want}, r.Lines())
	assert.NotContains(t, r.Lines()[0], "127.0.0.1")
}

func TestRenderEmpty(t *testing.T) {
	r, err := New().Render(privacy.Plain{})
	require.NoError(t, err)
	assert.True(t, r.Empty())
	assert.Empty(t, r.Lines())
	assert.Equal(t, uint64(0), r.Total)
}

func TestRenderTwice(t *testing.T) {
	a := New()
	a.Process(rec("10.0.0.1", 80))

	_, err := a.Render(privacy.Plain{})
	require.NoError(t, err)

	_, err = a.Render(privacy.Plain{})
	assert.ErrorIs(t, err, core.ErrReportConsumed)
}

func TestMappedAddressIsDistinct(t *testing.T) {
	a := New()
	a.Process(rec("10.0.0.1", 80))
	a.Process(rec("::ffff:10.0.0.1", 80))

	r, err := a.Render(privacy.Plain{})
	require.NoError(t, err)
	assert.Len(t, r.Groups, 2)
}

func TestGroupString(t *testing.T) {
	g := Group{Source: "abc", Total: 3, Ports: []PortCount{{Port: 1, Count: 2}, {Port: 7, Count: 1}}}
	assert.Equal(t, "abc:3 1:2 7:1", g.String())
}

func TestProcessAfterRenderIsIgnored(t *testing.T) {
	a := New()
	a.Process(rec("10.0.0.1", 80))
	_, err := a.Render(privacy.Plain{})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.Equal(t, uint64(1), a.Process(rec("10.0.0.2", 443)))
	})
	assert.Equal(t, uint64(1), a.Total())
	assert.Zero(t, a.Len())
}
