package telegram

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
)

func TestSignedID(t *testing.T) {
	assert.Equal(t, int64(42), SignedID(PeerUser, 42))
	assert.Equal(t, int64(-42), SignedID(PeerChat, 42))
	assert.Equal(t, int64(-1000000000123), SignedID(PeerChannel, 123))
}

func TestSignedPeerID(t *testing.T) {
	assert.Equal(t, int64(7), SignedPeerID(&tg.PeerUser{UserID: 7}))
	assert.Equal(t, int64(-7), SignedPeerID(&tg.PeerChat{ChatID: 7}))
	assert.Equal(t, int64(-1000000000007), SignedPeerID(&tg.PeerChannel{ChannelID: 7}))
}

func TestRawID_RoundTrip(t *testing.T) {
	for _, kind := range []PeerKind{PeerUser, PeerChat, PeerChannel} {
		signed := SignedID(kind, 987654)
		gotKind, raw := RawID(signed)
		assert.Equal(t, kind, gotKind)
		assert.Equal(t, int64(987654), raw)
	}
}
