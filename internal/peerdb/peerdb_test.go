package peerdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tgcrawler/internal/telegram"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "peers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRememberChat_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	info := &telegram.ChatInfo{
		InternalID: telegram.SignedID(telegram.PeerChannel, 123),
		RawID:      123,
		AccessHash: 987,
		Kind:       telegram.PeerChannel,
		Title:      "Example",
		Username:   "example",
	}
	require.NoError(t, db.RememberChat(info))

	peer, err := db.Lookup(info.InternalID)
	require.NoError(t, err)
	require.NotNil(t, peer)
	assert.Equal(t, int64(987), peer.AccessHash)
	assert.Equal(t, "channel", peer.Kind)

	byName, err := db.LookupUsername("example")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, info.InternalID, byName.SignedID)
}

func TestRememberChat_SkipsUnjoinedInvite(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RememberChat(&telegram.ChatInfo{Title: "invite only"}))

	peer, err := db.Lookup(0)
	require.NoError(t, err)
	assert.Nil(t, peer)
}

func TestLookup_Unseen(t *testing.T) {
	db := openTestDB(t)

	peer, err := db.Lookup(42)
	require.NoError(t, err)
	assert.Nil(t, peer)
}

func TestRememberUser_Upsert(t *testing.T) {
	db := openTestDB(t)

	m := &telegram.MemberInfo{UserID: 7, AccessHash: 1, Username: "alice", FirstName: "Alice"}
	require.NoError(t, db.RememberUser(m))

	m.AccessHash = 2
	require.NoError(t, db.RememberUser(m))

	peer, err := db.Lookup(7)
	require.NoError(t, err)
	require.NotNil(t, peer)
	assert.Equal(t, int64(2), peer.AccessHash)
}
