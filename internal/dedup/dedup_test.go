package dedup

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryClaimIsExclusive(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Claim("pay_1"))
	assert.False(t, r.Claim("pay_1"), "second claim must be denied")
	assert.True(t, r.Claim("pay_2"), "other keys are independent")

	r.Release("pay_1")
	assert.True(t, r.Claim("pay_1"), "released key can be claimed again")
}

func TestRegistryConcurrentClaimsHaveOneWinner(t *testing.T) {
	r := NewRegistry()
	const n = 64

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r.Claim("pay_race") {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRegistryReleaseAfterGrace(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Claim("pay_1"))

	r.ReleaseAfter("pay_1", 30*time.Millisecond)
	assert.False(t, r.Claim("pay_1"), "claim is held during the grace period")

	require.Eventually(t, func() bool { return !r.Held("pay_1") }, time.Second, 5*time.Millisecond)
	assert.True(t, r.Claim("pay_1"))
}

func TestRegistryReleaseAfterZeroIsImmediate(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Claim("pay_1"))
	r.ReleaseAfter("pay_1", 0)
	assert.False(t, r.Held("pay_1"))
}

func TestRegistryReleaseCancelsScheduledRelease(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Claim("pay_1"))
	r.ReleaseAfter("pay_1", 20*time.Millisecond)

	// released and re-claimed before the old timer fires
	r.Release("pay_1")
	require.True(t, r.Claim("pay_1"))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, r.Held("pay_1"), "stale timer must not drop the new claim")
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Claim("pay_1"))
	r.ReleaseAfter("pay_1", time.Hour)

	r.Close()

	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Claim("pay_2"), "closed registry refuses claims")
}

func TestDeduplicatorChecksBothScopes(t *testing.T) {
	global := NewRegistry()
	a := New(global)
	b := New(global)
	t.Cleanup(a.Close)
	t.Cleanup(b.Close)

	require.True(t, a.TryClaim("pay_1"))
	assert.False(t, a.TryClaim("pay_1"), "same call site re-entering is denied")
	assert.False(t, b.TryClaim("pay_1"), "other call site is denied by the process registry")
	assert.False(t, b.local.Held("pay_1"), "failed global claim rolls back the local claim")

	a.Release("pay_1")
	assert.True(t, b.TryClaim("pay_1"))
}

func TestDeduplicatorReleaseAfter(t *testing.T) {
	global := NewRegistry()
	d := New(global)
	t.Cleanup(d.Close)

	require.True(t, d.TryClaim("pay_1"))
	d.ReleaseAfter("pay_1", 20*time.Millisecond)
	assert.False(t, d.TryClaim("pay_1"))

	require.Eventually(t, func() bool { return d.TryClaim("pay_1") }, time.Second, 5*time.Millisecond)
}
