package websocket

import (
	"context"
	"encoding/json"
	"live-auction/internal/api"
	"live-auction/internal/domain"
	"live-auction/internal/feed"
	"live-auction/internal/services"
	"live-auction/pkg/logger"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	ledger      *services.Ledger
	feed        *services.FeedService
	connManager *ConnectionManager
	log         logger.Logger
	upgrader    websocket.Upgrader
}

func NewWebSocketHandler(ledger *services.Ledger, feedService *services.FeedService,
	connManager *ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		ledger:      ledger,
		feed:        feedService,
		connManager: connManager,
		log:         log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}
}

// Register mounts the socket endpoints:
//
//	/ws/auctions/{auctionID}?user_id=...      one auction; place_bid allowed
//	/ws/dashboard?user_id=...&scope=owned     the user's auctions (owned | bid_on)
func (h *WebSocketHandler) Register(r *mux.Router) {
	r.HandleFunc("/ws/auctions/{auctionID}", h.HandleAuction)
	r.HandleFunc("/ws/dashboard", h.HandleDashboard)
}

func (h *WebSocketHandler) HandleAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]
	userID := r.URL.Query().Get("user_id")

	// The subscription outlives the upgrade request.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch, err := h.feed.WatchAuction(ctx, auctionID)
	if err != nil {
		h.log.Info("Rejected connection", "auction_id", auctionID, "error", err)
		writeHTTPError(w, err)
		return
	}

	snapshot := auctionSnapshot{Type: msgSnapshot, Auction: watch.Auction, Bids: watch.Bids}
	h.serve(ctx, w, r, userID, watch.Sub, snapshot, h.placeBid(auctionID))
}

func (h *WebSocketHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	scope := feed.Scope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = feed.ScopeOwned
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch, err := h.feed.WatchUser(ctx, userID, scope)
	if err != nil {
		h.log.Info("Rejected dashboard connection", "user_id", userID, "error", err)
		writeHTTPError(w, err)
		return
	}

	snapshot := userSnapshot{Type: msgSnapshot, Scope: watch.Scope, Owned: watch.Owned, BidOn: watch.BidOn}
	h.serve(ctx, w, r, userID, watch.Sub, snapshot, h.placeBid(""))
}

func (h *WebSocketHandler) serve(ctx context.Context, w http.ResponseWriter, r *http.Request,
	userID string, sub *feed.Subscription, snapshot interface{}, onBid bidFunc) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		sub.Close()
		return
	}

	wsConn := NewWebSocketConnection(conn, userID, sub, h.log)
	h.connManager.RegisterConnection(wsConn)
	defer h.connManager.UnregisterConnection(wsConn)

	wsConn.Run(ctx, snapshot, onBid)
}

// placeBid routes socket bids through the ledger. auctionID pins the target
// on auction streams; dashboards name it per message.
func (h *WebSocketHandler) placeBid(auctionID string) bidFunc {
	return func(ctx context.Context, userID string, msg inbound) interface{} {
		target := auctionID
		if target == "" {
			target = msg.AuctionID
		}
		if target == "" {
			return simpleMessage{Type: msgError, Message: "auction_id required"}
		}

		bid, err := h.ledger.SubmitBid(ctx, domain.BidRequest{
			AuctionID: target,
			BidderID:  userID,
			Amount:    msg.Amount,
		})
		if err != nil {
			return bidRejected{Type: msgBidRejected, RequestID: msg.RequestID, ErrorResponse: api.NewErrorResponse(err)}
		}
		return bidPlaced{Type: msgBidPlaced, RequestID: msg.RequestID, Bid: bid}
	}
}

func writeHTTPError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(api.StatusCode(err))
	_ = json.NewEncoder(w).Encode(api.NewErrorResponse(err))
}
