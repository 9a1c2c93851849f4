package websocket

import (
	"context"
	"encoding/json"
	"live-auction/internal/clock"
	"live-auction/internal/domain"
	"live-auction/internal/feed"
	"live-auction/internal/infrastructure/memory"
	"live-auction/internal/services"
	"live-auction/pkg/logger"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateway struct {
	server *httptest.Server
	ledger *services.Ledger
	clock  *clock.Manual
	conns  *ConnectionManager
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	log := logger.NewNop()
	hub, err := feed.NewHub(feed.Options{}, log)
	require.NoError(t, err)

	clk := clock.NewManual(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	ledger := services.NewLedger(memory.NewStore(), nil, services.NewBidValidator(services.DefaultMinIncrement), clk, log, hub)
	conns := NewConnectionManager(log)

	r := mux.NewRouter()
	NewWebSocketHandler(ledger, services.NewFeedService(ledger, hub, log), conns, log).Register(r)
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		hub.Close()
		ledger.Wait()
	})
	return &gateway{server: server, ledger: ledger, clock: clk, conns: conns}
}

func (g *gateway) create(t *testing.T, owner string) *domain.Auction {
	t.Helper()
	a, err := g.ledger.CreateAuction(context.Background(), domain.AuctionSpec{
		Title:         "Record player",
		StartingPrice: decimal.RequireFromString("100"),
		DurationDays:  1,
		OwnerID:       owner,
	})
	require.NoError(t, err)
	return a
}

func (g *gateway) dial(t *testing.T, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]json.RawMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func typeOf(t *testing.T, msg map[string]json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(msg["type"], &s))
	return s
}

func TestWebSocket_AuctionStream(t *testing.T) {
	g := newGateway(t)
	a := g.create(t, "alice")

	conn, _, err := g.dial(t, "/ws/auctions/"+a.ID+"?user_id=bob")
	require.NoError(t, err)

	snap := readMessage(t, conn)
	assert.Equal(t, msgSnapshot, typeOf(t, snap))
	assert.Eventually(t, func() bool { return g.conns.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": "110.00", "request_id": "r1"}))

	// the reply and the live event race to the writer
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[typeOf(t, readMessage(t, conn))] = true
	}
	assert.True(t, seen[msgBidPlaced])
	assert.True(t, seen[string(domain.BidAccepted)])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": 105, "request_id": "r2"}))
	rejected := readMessage(t, conn)
	require.Equal(t, msgBidRejected, typeOf(t, rejected))
	assert.JSONEq(t, `"bid_too_low"`, string(rejected["reason"]))
	assert.JSONEq(t, `"110.01"`, string(rejected["min_amount"]))
	assert.JSONEq(t, `"r2"`, string(rejected["request_id"]))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, msgPong, typeOf(t, readMessage(t, conn)))
}

func TestWebSocket_SelfBidRejected(t *testing.T) {
	g := newGateway(t)
	a := g.create(t, "alice")

	conn, _, err := g.dial(t, "/ws/auctions/"+a.ID+"?user_id=alice")
	require.NoError(t, err)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": "150"}))
	msg := readMessage(t, conn)
	assert.Equal(t, msgBidRejected, typeOf(t, msg))
	assert.JSONEq(t, `"self_bid_forbidden"`, string(msg["reason"]))
}

func TestWebSocket_UnknownAuction(t *testing.T) {
	g := newGateway(t)
	_, resp, err := g.dial(t, "/ws/auctions/missing?user_id=bob")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_StreamEndsWithAuction(t *testing.T) {
	g := newGateway(t)
	a := g.create(t, "alice")

	conn, _, err := g.dial(t, "/ws/auctions/"+a.ID)
	require.NoError(t, err)
	readMessage(t, conn)

	g.clock.Set(a.EndTime)
	_, changed, err := g.ledger.CloseAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, changed)

	ended := readMessage(t, conn)
	assert.Equal(t, string(domain.AuctionUpdated), typeOf(t, ended))
	closed := readMessage(t, conn)
	assert.Equal(t, msgClosed, typeOf(t, closed))
	assert.JSONEq(t, `"auction_ended"`, string(closed["reason"]))
}

func TestWebSocket_Dashboard(t *testing.T) {
	g := newGateway(t)
	g.create(t, "alice")

	_, resp, err := g.dial(t, "/ws/dashboard?scope=owned")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = g.dial(t, "/ws/dashboard?user_id=alice&scope=everything")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	conn, _, err := g.dial(t, "/ws/dashboard?user_id=alice&scope=owned")
	require.NoError(t, err)
	snap := readMessage(t, conn)
	assert.Equal(t, msgSnapshot, typeOf(t, snap))
	var owned []json.RawMessage
	require.NoError(t, json.Unmarshal(snap["owned"], &owned))
	assert.Len(t, owned, 1)

	created := g.create(t, "alice")
	msg := readMessage(t, conn)
	assert.Equal(t, string(domain.AuctionUpdated), typeOf(t, msg))
	assert.Contains(t, string(msg["event"]), created.ID)
}

func TestWebSocket_ShutdownClosesConnections(t *testing.T) {
	g := newGateway(t)
	a := g.create(t, "alice")

	conn, _, err := g.dial(t, "/ws/auctions/"+a.ID+"?user_id=bob")
	require.NoError(t, err)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return g.conns.Len() == 1 }, time.Second, 10*time.Millisecond)

	g.conns.CloseAll()
	msg := readMessage(t, conn)
	assert.Equal(t, msgClosed, typeOf(t, msg))
	assert.JSONEq(t, `"server_shutdown"`, string(msg["reason"]))

	assert.Eventually(t, func() bool { return g.conns.Len() == 0 }, time.Second, 10*time.Millisecond)
}
