package gateway_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"chatcall/backend/internal/apperr"
	"chatcall/backend/internal/auth"
	"chatcall/backend/internal/conversation"
	"chatcall/backend/internal/gateway"
	"chatcall/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayServer(t *testing.T, backend gateway.Gateway) (*httptest.Server, *auth.Signer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	signer := auth.NewSigner("gateway-secret", time.Hour).WithAudience(auth.GatewayAudience)

	r := gin.New()
	api := r.Group("", auth.RequireBearer(signer))
	gateway.NewServer(backend, nil).Register(api)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, signer
}

func TestClient_RoundTrip(t *testing.T) {
	srv, signer := newGatewayServer(t, gateway.NewMemory())
	c := gateway.NewClient(srv.URL+"/", auth.NewSignedTokenSource(signer, "api"), nil)
	ctx := context.Background()

	id, err := c.Create(ctx, "items", record{Owner: "alice", At: "2024-01-01T00:00:00Z", N: 3})
	require.NoError(t, err)

	var got record
	require.NoError(t, gateway.GetInto(ctx, c, "items", id, &got))
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, int64(3), got.N)

	require.NoError(t, c.Update(ctx, "items", id, map[string]any{"owner": "bob"}))
	res, err := c.Query(ctx, "items", gateway.Query{
		Filter: map[string]any{"owner": "bob", "readAt": nil},
		Sort:   &gateway.Sort{Field: "at", Desc: true},
		Limit:  5,
		Page:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	_, err = c.Create(ctx, "items", record{ID: id})
	assert.ErrorIs(t, err, gateway.ErrConflict)

	require.NoError(t, c.Delete(ctx, "items", id))
	_, err = c.Get(ctx, "items", id)
	assert.ErrorIs(t, err, gateway.ErrNotFound)

	_, err = c.Query(ctx, "items", gateway.Query{Limit: 0, Page: 1})
	assert.ErrorIs(t, err, gateway.ErrInvalid)
}

// countingTokens hands out a fixed token and counts invalidations.
type countingTokens struct {
	token       string
	invalidated atomic.Int32
}

func (c *countingTokens) Token(context.Context) (string, error) { return c.token, nil }
func (c *countingTokens) Invalidate()                          { c.invalidated.Add(1) }

func TestClient_UnauthorizedInvalidatesCredential(t *testing.T) {
	srv, _ := newGatewayServer(t, gateway.NewMemory())
	tokens := &countingTokens{token: "stale"}
	c := gateway.NewClient(srv.URL, tokens, nil)

	_, err := c.Get(context.Background(), "chats", "a_b")
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	assert.Equal(t, int32(1), tokens.invalidated.Load())

	assert.ErrorIs(t, apperr.FromGateway("op", "chat", err), apperr.ErrBackendUnavailable)
}

// TestServer_RejectsEndUserTokens checks a token signed with the shared
// secret but minted for an end user cannot reach the collections.
func TestServer_RejectsEndUserTokens(t *testing.T) {
	mem := gateway.NewMemory()
	mem.Insert(gateway.Chats, gateway.Document{"id": "alice_bob"})
	srv, _ := newGatewayServer(t, mem)

	userToken, _, err := auth.NewSigner("gateway-secret", time.Hour).Sign("viewer")
	require.NoError(t, err)
	c := gateway.NewClient(srv.URL, auth.StaticToken(userToken), nil)

	_, err = c.Get(context.Background(), gateway.Chats, "alice_bob")
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	assert.ErrorIs(t, c.Delete(context.Background(), gateway.Chats, "alice_bob"), gateway.ErrUnauthorized)

	_, err = mem.Get(context.Background(), gateway.Chats, "alice_bob")
	assert.NoError(t, err)
}

func TestClient_Unreachable(t *testing.T) {
	srv, signer := newGatewayServer(t, gateway.NewMemory())
	srv.Close()

	c := gateway.NewClient(srv.URL, auth.NewSignedTokenSource(signer, "api"), nil)
	_, err := c.Create(context.Background(), "chats", map[string]any{"id": "x"})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestQueryCodec(t *testing.T) {
	q := gateway.Query{
		Filter: map[string]any{"chatId": "a_b", "readAt": nil},
		Sort:   &gateway.Sort{Field: "timestamp", Desc: true},
		Limit:  20,
		Page:   2,
	}
	params, err := gateway.EncodeQuery(q)
	require.NoError(t, err)
	assert.Equal(t, "-timestamp", params.Get("sort"))
	assert.Equal(t, "null", params.Get("readAt"))

	back, err := gateway.DecodeQuery(params)
	require.NoError(t, err)
	assert.Equal(t, q.Sort, back.Sort)
	assert.Equal(t, 20, back.Limit)
	assert.Equal(t, 2, back.Page)
	assert.Equal(t, map[string]any{"chatId": "a_b", "readAt": nil}, back.Filter)

	_, err = gateway.EncodeQuery(gateway.Query{Filter: map[string]any{"limit": 1}, Limit: 1, Page: 1})
	assert.ErrorIs(t, err, gateway.ErrInvalid)

	_, err = gateway.DecodeQuery(url.Values{"limit": {"ten"}, "page": {"1"}})
	assert.ErrorIs(t, err, gateway.ErrInvalid)
}

// TestConversationOverHTTP runs the conversation store against the HTTP
// gateway to check sort, filter and pagination survive the wire.
func TestConversationOverHTTP(t *testing.T) {
	srv, signer := newGatewayServer(t, gateway.NewMemory())
	c := gateway.NewClient(srv.URL, auth.NewSignedTokenSource(signer, "api"), nil)
	store := conversation.NewStore(c, nil, nil, 0)
	t.Cleanup(store.Listeners.CloseAll)
	ctx := context.Background()

	chatID, err := store.CreateChat(ctx, "viewer", "streamer")
	require.NoError(t, err)
	again, err := store.CreateChat(ctx, "viewer", "streamer")
	require.NoError(t, err)
	assert.Equal(t, chatID, again)

	var sent []*models.Message
	for _, body := range []string{"one", "two", "three"} {
		msg, err := store.SendMessage(ctx, chatID, "viewer", body, models.TextMessage)
		require.NoError(t, err)
		sent = append(sent, msg)
	}

	page, err := store.GetMessages(ctx, chatID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, sent[2].ID, page.Items[0].ID)
	assert.Equal(t, sent[1].ID, page.Items[1].ID)
	assert.True(t, page.HasMore)
	assert.Equal(t, 2, page.TotalPages)

	n, err := store.MarkAsRead(ctx, chatID, "streamer")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, store.DeleteChat(ctx, chatID))
	_, err = store.GetChat(ctx, chatID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
