package chats

import (
	"context"
	"testing"
	"time"

	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tgcrawler/internal/config"
	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/pool"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/repository/repotest"
	"github.com/blockedby/tgcrawler/internal/telegram"
)

// fakeJoinSession scripts a phone's join outcomes, consumed in order.
type fakeJoinSession struct {
	outcomes []error
	info     *telegram.ChatInfo
	history  []telegram.MessageInfo
	joins    int
}

func (f *fakeJoinSession) Join(context.Context, string) (*telegram.ChatInfo, error) {
	f.joins++
	if len(f.outcomes) > 0 {
		err := f.outcomes[0]
		f.outcomes = f.outcomes[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.info, nil
}

func (f *fakeJoinSession) History(context.Context, *telegram.ChatInfo, int, int, int) ([]telegram.MessageInfo, error) {
	return f.history, nil
}

func (f *fakeJoinSession) Close() {}

func newTestJoiner(backend *repotest.Backend, session *fakeJoinSession) *Joiner {
	store := repository.NewStore(backend)
	j := &Joiner{
		chats:    repository.NewChatsRepository(store),
		phones:   repository.NewPhonesRepository(store),
		messages: repository.NewMessagesRepository(store),
		profile:  config.DefaultProfile(),
		log:      logger.With("joiner-test"),
		sleep:    func(context.Context, time.Duration) error { return nil },
	}
	j.factory = func(context.Context, *models.Phone) (JoinSession, error) { return session, nil }
	return j
}

func joinedChatInfo() *telegram.ChatInfo {
	return &telegram.ChatInfo{
		InternalID:   telegram.SignedID(telegram.PeerChannel, 77),
		RawID:        77,
		Kind:         telegram.PeerChannel,
		Title:        "Joined",
		Joined:       true,
		MembersCount: 9,
	}
}

func TestJoin_Success(t *testing.T) {
	backend := repotest.New()
	now := time.Now()
	session := &fakeJoinSession{
		info: joinedChatInfo(),
		history: []telegram.MessageInfo{
			{ID: 3, Text: "latest", Date: now},
			{ID: 2, Text: "older", Date: now},
		},
	}
	j := newTestJoiner(backend, session)

	chat := seedChat(t, j.chats, "https://t.me/example")
	wired := pool.NewWiredPhones(repository.NewChatPhonesRepository(repository.NewStore(backend)), nil)

	err := j.Join(context.Background(), chat, &models.Phone{ID: "p1", Number: "+1"}, wired)
	require.NoError(t, err)

	assert.Equal(t, []string{"p1"}, wired.Using())
	require.NotNil(t, chat.InternalID)
	assert.Equal(t, telegram.SignedID(telegram.PeerChannel, 77), *chat.InternalID)

	// liveness sample persisted
	rows, err := backend.List(context.Background(), (&models.Message{}).TypeName(), nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestJoin_FloodWaitRetriesSamePhone(t *testing.T) {
	backend := repotest.New()
	session := &fakeJoinSession{
		outcomes: []error{tgerr.New(420, "FLOOD_WAIT_45"), nil},
		info:     joinedChatInfo(),
	}
	j := newTestJoiner(backend, session)

	var slept []time.Duration
	j.SetSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	chat := seedChat(t, j.chats, "https://t.me/example")
	wired := pool.NewWiredPhones(repository.NewChatPhonesRepository(repository.NewStore(backend)), nil)

	err := j.Join(context.Background(), chat, &models.Phone{ID: "p1", Number: "+1"}, wired)
	require.NoError(t, err)

	require.Len(t, slept, 1)
	assert.Equal(t, 45*time.Second, slept[0], "must sleep exactly the server-specified duration")
	assert.Equal(t, 2, session.joins, "same phone retried after the flood sleep")
}

func TestJoin_ChannelsFullMarksPhone(t *testing.T) {
	backend := repotest.New()
	session := &fakeJoinSession{outcomes: []error{tgerr.New(400, "CHANNELS_TOO_MUCH")}}
	j := newTestJoiner(backend, session)

	chat := seedChat(t, j.chats, "https://t.me/example")
	phone := &models.Phone{ID: "p1", Number: "+1", Status: models.PhoneStatusReady}
	require.NoError(t, j.phones.Save(context.Background(), phone))
	wired := pool.NewWiredPhones(repository.NewChatPhonesRepository(repository.NewStore(backend)), nil)

	err := j.Join(context.Background(), chat, phone, wired)
	assert.ErrorIs(t, err, ErrPhoneFull)
	assert.Equal(t, models.PhoneStatusFull, phone.Status)
	assert.Empty(t, wired.Using())
}

func TestJoin_DefinitiveErrorFailsChat(t *testing.T) {
	backend := repotest.New()
	session := &fakeJoinSession{outcomes: []error{tgerr.New(400, "INVITE_HASH_EXPIRED")}}
	j := newTestJoiner(backend, session)

	chat := seedChat(t, j.chats, "https://t.me/joinchat/dead")
	wired := pool.NewWiredPhones(repository.NewChatPhonesRepository(repository.NewStore(backend)), nil)

	err := j.Join(context.Background(), chat, &models.Phone{ID: "p1", Number: "+1"}, wired)
	assert.ErrorIs(t, err, ErrChatFailed)
	assert.Equal(t, models.ChatStatusFailed, chat.Status)
}

func TestJoin_CeilingSkipsWiring(t *testing.T) {
	backend := repotest.New()
	session := &fakeJoinSession{info: joinedChatInfo()}
	j := newTestJoiner(backend, session)

	chat := seedChat(t, j.chats, "https://t.me/example")
	saver := repository.NewChatPhonesRepository(repository.NewStore(backend))
	wired := pool.NewWiredPhones(saver, nil)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, wired.Add(context.Background(), &models.ChatPhone{ChatID: chat.ID, PhoneID: id}))
	}

	err := j.Join(context.Background(), chat, &models.Phone{ID: "p4", Number: "+4"}, wired)
	require.NoError(t, err)

	assert.Equal(t, 0, session.joins, "wiring beyond the ceiling is skipped outright")
	assert.Len(t, wired.Using(), 3)
}
