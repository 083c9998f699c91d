package chats

import (
	"context"
	"testing"

	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/repository/repotest"
	"github.com/blockedby/tgcrawler/internal/telegram"
)

// fakeResolveSession scripts one phone's resolution outcome.
type fakeResolveSession struct {
	info *telegram.ChatInfo
	err  error
}

func (f *fakeResolveSession) Resolve(context.Context, string) (*telegram.ChatInfo, error) {
	return f.info, f.err
}

func (f *fakeResolveSession) Close() {}

func newTestResolver(chats *repository.ChatsRepository, sessions map[string]*fakeResolveSession) *Resolver {
	r := &Resolver{chats: chats, log: logger.With("resolver-test")}
	r.factory = func(_ context.Context, phone *models.Phone) (Session, error) {
		s, ok := sessions[phone.ID]
		if !ok {
			return nil, telegram.ErrUnauthorized
		}
		return s, nil
	}
	return r
}

func seedChat(t *testing.T, repo *repository.ChatsRepository, link string) *models.Chat {
	t.Helper()
	chat := &models.Chat{Link: link, Status: models.ChatStatusCreated, ParserID: "parser-1"}
	require.NoError(t, repo.Save(context.Background(), chat))
	return chat
}

func TestResolve_PublicChannel(t *testing.T) {
	repo := repository.NewChatsRepository(repository.NewStore(repotest.New()))
	chat := seedChat(t, repo, "https://t.me/example")

	sessions := map[string]*fakeResolveSession{
		"p1": {info: &telegram.ChatInfo{
			InternalID:    telegram.SignedID(telegram.PeerChannel, 123),
			RawID:         123,
			Kind:          telegram.PeerChannel,
			Title:         "Example",
			Joined:        true,
			MembersCount:  42,
			MessagesCount: 1000,
		}},
	}
	r := newTestResolver(repo, sessions)

	err := r.Resolve(context.Background(), chat, []*models.Phone{{ID: "p1", Number: "+1"}})
	require.NoError(t, err)

	assert.Equal(t, models.ChatStatusAvailable, chat.Status)
	require.NotNil(t, chat.InternalID)
	assert.Equal(t, int64(-1000000000123), *chat.InternalID)
	require.NotNil(t, chat.Title)
	assert.Equal(t, "Example", *chat.Title)
	require.NotNil(t, chat.TotalMembers)
	assert.Equal(t, 42, *chat.TotalMembers)
}

func TestResolve_InviteNotJoined(t *testing.T) {
	repo := repository.NewChatsRepository(repository.NewStore(repotest.New()))
	chat := seedChat(t, repo, "https://t.me/joinchat/AbC")

	sessions := map[string]*fakeResolveSession{
		"p1": {info: &telegram.ChatInfo{Title: "Private", MembersCount: 10, Joined: false}},
	}
	r := newTestResolver(repo, sessions)

	require.NoError(t, r.Resolve(context.Background(), chat, []*models.Phone{{ID: "p1"}}))

	assert.Equal(t, models.ChatStatusAvailable, chat.Status)
	assert.Nil(t, chat.InternalID, "unjoined invite has no internal id")
	require.NotNil(t, chat.StatusText)
	assert.Equal(t, "available but requires join", *chat.StatusText)
}

func TestResolve_FloodMovesToNextPhone(t *testing.T) {
	repo := repository.NewChatsRepository(repository.NewStore(repotest.New()))
	chat := seedChat(t, repo, "https://t.me/example")

	sessions := map[string]*fakeResolveSession{
		"p1": {err: tgerr.New(420, "FLOOD_WAIT_120")},
		"p2": {info: &telegram.ChatInfo{
			InternalID: telegram.SignedID(telegram.PeerChannel, 5),
			Kind:       telegram.PeerChannel,
			Title:      "Second phone wins",
			Joined:     true,
		}},
	}
	r := newTestResolver(repo, sessions)

	err := r.Resolve(context.Background(), chat,
		[]*models.Phone{{ID: "p1", Number: "+1"}, {ID: "p2", Number: "+2"}})
	require.NoError(t, err)
	assert.Equal(t, models.ChatStatusAvailable, chat.Status)
}

func TestResolve_UnavailableMarksFailed(t *testing.T) {
	repo := repository.NewChatsRepository(repository.NewStore(repotest.New()))
	chat := seedChat(t, repo, "https://t.me/gone")

	sessions := map[string]*fakeResolveSession{
		"p1": {err: tgerr.New(400, "USERNAME_NOT_OCCUPIED")},
		"p2": {info: &telegram.ChatInfo{Joined: true}},
	}
	r := newTestResolver(repo, sessions)

	err := r.Resolve(context.Background(), chat,
		[]*models.Phone{{ID: "p1", Number: "+1"}, {ID: "p2", Number: "+2"}})
	require.NoError(t, err)

	assert.Equal(t, models.ChatStatusFailed, chat.Status, "chat failure stops the phone loop")
	require.NotNil(t, chat.StatusText)
}

func TestResolve_ExhaustionIsNoPhones(t *testing.T) {
	repo := repository.NewChatsRepository(repository.NewStore(repotest.New()))
	chat := seedChat(t, repo, "https://t.me/example")

	sessions := map[string]*fakeResolveSession{
		"p1": {err: telegram.ErrUnauthorized},
	}
	r := newTestResolver(repo, sessions)

	err := r.Resolve(context.Background(), chat,
		[]*models.Phone{{ID: "p1", Number: "+1"}, {ID: "p2", Number: "+2"}})
	assert.ErrorIs(t, err, ErrNoPhones)
	assert.NotEqual(t, models.ChatStatusFailed, chat.Status)
}
