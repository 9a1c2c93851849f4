package websocket

import (
	"errors"
	"live-auction/internal/api"
	"live-auction/internal/domain"
	"live-auction/internal/feed"

	"github.com/shopspring/decimal"
)

// Client to server.
const (
	msgPlaceBid = "place_bid"
	msgPing     = "ping"
)

// Server to client.
const (
	msgSnapshot    = "snapshot"
	msgBidPlaced   = "bid_placed"
	msgBidRejected = "bid_rejected"
	msgPong        = "pong"
	msgError       = "error"
	msgClosed      = "closed"
)

type inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	AuctionID string          `json:"auction_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

type auctionSnapshot struct {
	Type    string          `json:"type"`
	Auction *domain.Auction `json:"auction"`
	Bids    []*domain.Bid   `json:"bids"`
}

type userSnapshot struct {
	Type  string                 `json:"type"`
	Scope feed.Scope             `json:"scope"`
	Owned []*domain.Auction      `json:"owned,omitempty"`
	BidOn []*domain.BidOnSummary `json:"bid_on,omitempty"`
}

// eventMessage carries a committed change; Type is the event type.
type eventMessage struct {
	Type  domain.EventType `json:"type"`
	Event domain.Event     `json:"event"`
}

type bidPlaced struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Bid       *domain.Bid `json:"bid"`
}

type bidRejected struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	api.ErrorResponse
}

type simpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type closedMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// closeReason names why a subscription ended; nil means the auction ended.
func closeReason(err error) string {
	switch {
	case err == nil:
		return "auction_ended"
	case errors.Is(err, feed.ErrSlowConsumer):
		return "slow_consumer"
	case errors.Is(err, feed.ErrHubClosed):
		return "server_shutdown"
	default:
		return "subscription_closed"
	}
}
