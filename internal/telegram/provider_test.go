package telegram

import (
	"context"
	"testing"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tgcrawler/internal/logger"
)

func TestSessionMiddlewares_FloodWaitIsOptIn(t *testing.T) {
	limiter := NewRateLimiter(1.0, 1)
	takeout := &takeoutMiddleware{}

	mw := sessionMiddlewares(&openConfig{}, limiter, takeout)
	require.Len(t, mw, 2)
	for _, m := range mw {
		_, ok := m.(*floodwait.SimpleWaiter)
		assert.False(t, ok, "flood waiter must not wrap sessions by default")
	}

	mw = sessionMiddlewares(&openConfig{floodWait: true}, limiter, takeout)
	require.Len(t, mw, 3)
	_, ok := mw[0].(*floodwait.SimpleWaiter)
	assert.True(t, ok, "opted-in sessions get the flood waiter first in the chain")
}

func eventSession(buffer int) *Session {
	return &Session{
		events: make(chan Event, buffer),
		log:    logger.With("telegram-test"),
	}
}

func TestHandleUpdates_BasicGroupEvents(t *testing.T) {
	s := eventSession(8)

	joined := &tg.UpdateChatParticipant{ChatID: 99, UserID: 8}
	joined.SetNewParticipant(&tg.ChatParticipant{UserID: 8})

	updates := &tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateNewMessage{Message: &tg.Message{
			ID:      11,
			Date:    1700000000,
			Message: "hello",
			PeerID:  &tg.PeerChat{ChatID: 99},
			FromID:  &tg.PeerUser{UserID: 5},
		}},
		&tg.UpdateChatParticipantAdd{ChatID: 99, UserID: 6},
		&tg.UpdateChatParticipantDelete{ChatID: 99, UserID: 7},
		joined,
		&tg.UpdateChatParticipant{ChatID: 99, UserID: 9},
	}}
	require.NoError(t, s.handleUpdates(context.Background(), updates))
	require.Len(t, s.events, 5)

	ev := <-s.events
	assert.Equal(t, EventNewMessage, ev.Kind)
	assert.Equal(t, int64(99), ev.PeerID)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "hello", ev.Message.Text)
	require.NotNil(t, ev.Message.SenderID)
	assert.Equal(t, int64(5), *ev.Message.SenderID)

	ev = <-s.events
	assert.Equal(t, EventUserJoined, ev.Kind)
	assert.Equal(t, int64(6), ev.UserID)

	ev = <-s.events
	assert.Equal(t, EventUserLeft, ev.Kind)
	assert.Equal(t, int64(7), ev.UserID)

	ev = <-s.events
	assert.Equal(t, EventUserJoined, ev.Kind)
	assert.Equal(t, int64(8), ev.UserID)

	ev = <-s.events
	assert.Equal(t, EventUserLeft, ev.Kind, "no new participant means the user left")
	assert.Equal(t, int64(9), ev.UserID)
}

func TestHandleUpdates_ShortChatMessage(t *testing.T) {
	s := eventSession(1)

	short := &tg.UpdateShortChatMessage{
		ID:      3,
		Date:    1700000000,
		Message: "inline",
		ChatID:  42,
		FromID:  5,
	}
	require.NoError(t, s.handleUpdates(context.Background(), short))
	require.Len(t, s.events, 1)

	ev := <-s.events
	assert.Equal(t, EventNewMessage, ev.Kind)
	assert.Equal(t, int64(42), ev.PeerID)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "inline", ev.Message.Text)
	require.NotNil(t, ev.Message.SenderID)
	assert.Equal(t, int64(5), *ev.Message.SenderID)
}

func TestHandleUpdates_ChannelEvents(t *testing.T) {
	s := eventSession(2)

	updates := &tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateNewChannelMessage{Message: &tg.Message{
			ID:      21,
			Date:    1700000000,
			Message: "broadcast",
			PeerID:  &tg.PeerChannel{ChannelID: 77},
		}},
		&tg.UpdateChannelParticipant{ChannelID: 77, UserID: 4},
	}}
	require.NoError(t, s.handleUpdates(context.Background(), updates))
	require.Len(t, s.events, 2)

	ev := <-s.events
	assert.Equal(t, EventNewMessage, ev.Kind)
	assert.Equal(t, int64(77), ev.PeerID)

	ev = <-s.events
	assert.Equal(t, EventUserLeft, ev.Kind)
	assert.Equal(t, int64(4), ev.UserID)
}

func TestHandleUpdates_FullChannelDropsEvents(t *testing.T) {
	s := eventSession(1)

	updates := &tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateChatParticipantAdd{ChatID: 1, UserID: 1},
		&tg.UpdateChatParticipantAdd{ChatID: 1, UserID: 2},
	}}
	require.NoError(t, s.handleUpdates(context.Background(), updates))
	assert.Len(t, s.events, 1, "overflow is dropped, never blocks the client")
}
