package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetNXLocksAgainstSecondCaller(t *testing.T) {
	s := New()
	ok, err := s.SetNX("user:0xabc", "evaluating", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX("user:0xabc", "evaluating", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX on a live key must fail")
}

func TestSetNXSucceedsAfterExpiry(t *testing.T) {
	s := New()
	ok, err := s.SetNX("k", 1, time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	ok, err = s.SetNX("k", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetExOverwritesAndGetDecodes(t *testing.T) {
	s := New()
	type trace struct {
		HF float64
	}
	require.NoError(t, s.SetEx("trace:0x1", trace{HF: 1.02}, time.Minute))
	require.NoError(t, s.SetEx("trace:0x1", trace{HF: 0.98}, time.Minute))

	var got trace
	found, err := s.Get("trace:0x1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0.98, got.HF)
}

func TestGetMissingKey(t *testing.T) {
	s := New()
	var got string
	found, err := s.Get("nope", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteReleasesLock(t *testing.T) {
	s := New()
	_, _ = s.SetNX("lock", true, time.Minute)
	s.Delete("lock")

	ok, _ := s.SetNX("lock", true, time.Minute)
	assert.True(t, ok)
}

func TestSweepRemovesExpiredOnly(t *testing.T) {
	s := New()
	_, _ = s.SetNX("short", 1, time.Millisecond)
	_, _ = s.SetNX("long", 1, time.Hour)
	time.Sleep(5 * time.Millisecond)

	removed := s.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}
