package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/pool"
)

type fakeQueue struct{ connected bool }

func (f *fakeQueue) IsConnected() bool { return f.connected }

func newTestServer(connected bool) (*Server, *pool.Registry[*models.Phone], *pool.Registry[*models.Chat]) {
	phones := pool.NewRegistry[*models.Phone]()
	chats := pool.NewRegistry[*models.Chat]()
	srv := NewServer(&Config{Port: 0}, phones, chats, &fakeQueue{connected: connected})
	return srv, phones, chats
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(true)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReportsRegistries(t *testing.T) {
	srv, phones, chats := newTestServer(true)

	phones.Put("p1", &models.Phone{ID: "p1", Number: "+100", Status: models.PhoneStatusReady})
	chats.Put("c1", &models.Chat{ID: "c1", Link: "https://t.me/somechat", Status: models.ChatStatusAvailable})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.True(t, resp.NatsConnected)
	require.Len(t, resp.Phones, 1)
	assert.Equal(t, "+100", resp.Phones[0].Number)
	assert.Equal(t, "READY", resp.Phones[0].Status)
	require.Len(t, resp.Chats, 1)
	assert.Equal(t, "https://t.me/somechat", resp.Chats[0].Link)
}

func TestStatusEmptyRegistries(t *testing.T) {
	srv, _, _ := newTestServer(false)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.NatsConnected)
	assert.Empty(t, resp.Phones)
	assert.Empty(t, resp.Chats)
}
