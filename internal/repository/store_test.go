package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/repository/repotest"
)

func uniqueBackend() *repotest.Backend {
	b := repotest.New()
	b.Unique[(&models.Phone{}).TypeName()] = []string{"number"}
	b.Unique[(&models.Message{}).TypeName()] = []string{"internalId", "chat"}
	b.Unique[(&models.Member{}).TypeName()] = []string{"internalId"}
	b.Unique[(&models.ChatMember{}).TypeName()] = []string{"chat", "member"}
	return b
}

func TestSave_InsertAssignsIdentity(t *testing.T) {
	store := repository.NewStore(uniqueBackend())

	phone := &models.Phone{Number: "+1", Status: models.PhoneStatusCreated}
	require.NoError(t, store.Save(context.Background(), phone))
	assert.NotEmpty(t, phone.ID)
}

func TestSave_ConflictReconcilesToExistingRow(t *testing.T) {
	backend := uniqueBackend()
	store := repository.NewStore(backend)

	first := &models.Phone{Number: "+1", Status: models.PhoneStatusCreated}
	require.NoError(t, store.Save(context.Background(), first))

	// a second process saves the same number without knowing the id
	text := "updated elsewhere"
	second := &models.Phone{Number: "+1", Status: models.PhoneStatusReady, StatusText: &text}
	require.NoError(t, store.Save(context.Background(), second))

	assert.Equal(t, first.ID, second.ID, "conflict must resolve to the existing identity")
	assert.Equal(t, 1, backend.Count(first.TypeName()), "no duplicate row")

	require.NoError(t, store.Reload(context.Background(), first))
	assert.Equal(t, models.PhoneStatusReady, first.Status, "last writer wins at the field level")
}

func TestSave_ReplyStubReconciliation(t *testing.T) {
	backend := uniqueBackend()
	store := repository.NewStore(backend)
	messages := repository.NewMessagesRepository(store)

	// a reply references message 10 before the backfill reaches it
	stub, err := messages.Stub(context.Background(), "chat-1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, stub.ID)

	// the backfill later fetches the real message 10
	text := "the real parent"
	now := time.Now()
	real := &models.Message{InternalID: 10, ChatID: "chat-1", Text: &text, Date: &now}
	require.NoError(t, messages.Save(context.Background(), real))

	assert.Equal(t, stub.ID, real.ID, "real message reconciles into the stub row")
	assert.Equal(t, 1, backend.Count(real.TypeName()))
}

func TestSave_StubAfterRealKeepsStoredText(t *testing.T) {
	backend := uniqueBackend()
	store := repository.NewStore(backend)
	messages := repository.NewMessagesRepository(store)

	// the parent is fully stored before anything replies to it
	text := "the real parent"
	now := time.Now()
	real := &models.Message{InternalID: 499, ChatID: "chat-7", Text: &text, Date: &now}
	require.NoError(t, messages.Save(context.Background(), real))

	// a later reply asks for a placeholder for the same message
	stub, err := messages.Stub(context.Background(), "chat-7", 499)
	require.NoError(t, err)
	assert.Equal(t, real.ID, stub.ID, "placeholder resolves to the stored row")
	assert.Equal(t, 1, backend.Count(real.TypeName()))

	require.NoError(t, store.Reload(context.Background(), real))
	require.NotNil(t, real.Text, "stored message text must survive a stub save")
	assert.Equal(t, text, *real.Text)
	assert.NotNil(t, real.Date)
}

func TestSave_SparseConflictKeepsStoredFields(t *testing.T) {
	backend := uniqueBackend()
	store := repository.NewStore(backend)
	members := repository.NewMembersRepository(store)

	// the members pass stored the full profile
	username := "alice"
	first := "Alice"
	full := &models.Member{InternalID: 42, Username: &username, FirstName: &first}
	require.NoError(t, members.Save(context.Background(), full))

	// the backfill later saves the same sender knowing only its id
	sparse := &models.Member{InternalID: 42}
	require.NoError(t, members.Save(context.Background(), sparse))
	assert.Equal(t, full.ID, sparse.ID)
	assert.Equal(t, 1, backend.Count(full.TypeName()))

	require.NoError(t, store.Reload(context.Background(), full))
	require.NotNil(t, full.Username, "profile enrichment must survive a sparse save")
	assert.Equal(t, username, *full.Username)
	require.NotNil(t, full.FirstName)
	assert.Equal(t, first, *full.FirstName)
}

func TestSave_LeaveEventKeepsJoinDate(t *testing.T) {
	backend := uniqueBackend()
	store := repository.NewStore(backend)

	joined := time.Now().Add(-time.Hour)
	original := &models.ChatMember{ChatID: "chat-1", MemberID: "m1", Date: &joined}
	require.NoError(t, store.Save(context.Background(), original))

	// a leave event knows the pair but not the join date
	left := &models.ChatMember{ChatID: "chat-1", MemberID: "m1", IsLeft: true}
	require.NoError(t, store.Save(context.Background(), left))
	assert.Equal(t, original.ID, left.ID)

	require.NoError(t, store.Reload(context.Background(), original))
	assert.True(t, original.IsLeft)
	require.NotNil(t, original.Date, "join date must survive the leave event save")
	assert.WithinDuration(t, joined, *original.Date, time.Second)
}

func TestMaxInternalID_Checkpoint(t *testing.T) {
	store := repository.NewStore(uniqueBackend())
	messages := repository.NewMessagesRepository(store)

	for _, id := range []int64{3, 17, 9} {
		require.NoError(t, messages.Save(context.Background(), &models.Message{InternalID: id, ChatID: "chat-1"}))
	}
	require.NoError(t, messages.Save(context.Background(), &models.Message{InternalID: 99, ChatID: "chat-2"}))

	max, err := messages.MaxInternalID(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(17), max)
}

func TestMaxInternalID_EmptyChatIsZero(t *testing.T) {
	store := repository.NewStore(uniqueBackend())
	messages := repository.NewMessagesRepository(store)

	max, err := messages.MaxInternalID(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Zero(t, max)
}
