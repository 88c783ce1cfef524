package candidate

import (
	"fmt"
	"testing"
	"time"

	"github.com/shadowtick/liquidator/pkg/types"
	"github.com/stretchr/testify/assert"
)

func addr(n int) types.Address {
	return types.NormalizeAddress(fmt.Sprintf("0x%040d", n))
}

func TestManagerBoundedSize(t *testing.T) {
	m := New(3)
	now := time.Now()
	for i := 0; i < 10; i++ {
		m.Add(addr(i), now.Add(time.Duration(i)*time.Second))
		assert.LessOrEqual(t, m.Len(), 3)
	}
	assert.Equal(t, 3, m.Len())
}

func TestEvictionPrefersHealthyOldest(t *testing.T) {
	m := New(2)
	now := time.Now()

	m.Update(addr(1), 1.5, now)
	m.Update(addr(2), 0.9, now.Add(time.Second))
	_, created := m.Add(addr(3), now.Add(2*time.Second))
	assert.True(t, created)

	assert.Equal(t, 2, m.Len())
	_, ok1 := m.Get(addr(1))
	assert.False(t, ok1, "healthy candidate should have been evicted first")
	_, ok2 := m.Get(addr(2))
	assert.True(t, ok2)
}

func TestEvictionFallsBackToGlobalOldestWhenNoneHealthy(t *testing.T) {
	m := New(2)
	now := time.Now()

	m.Update(addr(1), 0.8, now)
	m.Update(addr(2), 0.95, now.Add(time.Second))
	m.Add(addr(3), now.Add(2*time.Second))

	_, ok1 := m.Get(addr(1))
	assert.False(t, ok1)
}

func TestGetStale(t *testing.T) {
	m := New(10)
	now := time.Now()
	m.Update(addr(1), 1.2, now.Add(-time.Minute))
	m.Update(addr(2), 1.2, now)

	stale := m.GetStale(1000, now)
	assert.Len(t, stale, 1)
	assert.Equal(t, addr(1), stale[0].Address)
}

func TestTouchCreatesCandidate(t *testing.T) {
	m := New(10)
	now := time.Now()
	c := m.Touch(addr(1), now)
	assert.Equal(t, addr(1), c.Address)
	assert.False(t, c.HasHf)
}
