package submit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	hash string
	err  error
}

func (f *fakeRelay) SubmitPrivate(ctx context.Context, signedTx []byte) (string, error) {
	return f.hash, f.err
}

type fakeBroadcaster struct {
	delay time.Duration
	hash  string
	err   error
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, signedTx []byte) (string, error) {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return f.hash, f.err
}

func TestPrivateTxSenderAcceptedOnPrivate(t *testing.T) {
	s := NewPrivateTxSender(ModeProtect, FallbackDirect, &fakeRelay{hash: "0xabc"}, nil, &fakeBroadcaster{hash: "0xfallback"}, time.Second)
	res, err := s.Submit(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, SentPrivate, res.Mode)
	assert.Equal(t, "0xabc", res.TxHash)
}

func TestPrivateTxSenderFallsBackDirect(t *testing.T) {
	s := NewPrivateTxSender(ModeProtect, FallbackDirect, &fakeRelay{err: fmt.Errorf("relay down")}, nil, &fakeBroadcaster{hash: "0xfallback"}, time.Second)
	res, err := s.Submit(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, SentPublic, res.Mode)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, "0xfallback", res.TxHash)
}

func TestPrivateTxSenderFallsBackToRacer(t *testing.T) {
	racer := NewWriteRacer(map[string]Broadcaster{
		"a": &fakeBroadcaster{hash: "0xraced", delay: time.Millisecond},
	}, time.Second)
	s := NewPrivateTxSender(ModeProtect, FallbackRace, &fakeRelay{err: fmt.Errorf("relay down")}, racer, nil, time.Second)
	res, err := s.Submit(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, SentPublic, res.Mode)
	assert.Equal(t, "0xraced", res.TxHash)
}

func TestPrivateTxSenderDisabledGoesDirect(t *testing.T) {
	s := NewPrivateTxSender(ModeDisabled, FallbackDirect, nil, nil, &fakeBroadcaster{hash: "0xdirect"}, time.Second)
	res, err := s.Submit(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "0xdirect", res.TxHash)
}

func TestWriteRacerReturnsFirstAccepted(t *testing.T) {
	racer := NewWriteRacer(map[string]Broadcaster{
		"slow": &fakeBroadcaster{hash: "0xslow", delay: 100 * time.Millisecond},
		"fast": &fakeBroadcaster{hash: "0xfast", delay: time.Millisecond},
	}, time.Second)
	hash, err := racer.Broadcast(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "0xfast", hash)
}

func TestWriteRacerAllFail(t *testing.T) {
	racer := NewWriteRacer(map[string]Broadcaster{
		"a": &fakeBroadcaster{err: fmt.Errorf("rejected")},
	}, time.Second)
	_, err := racer.Broadcast(context.Background(), []byte{1})
	assert.Error(t, err)
}
