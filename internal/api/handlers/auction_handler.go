package handlers

import (
	"live-auction/internal/api"
	"live-auction/internal/api/middleware"
	"live-auction/internal/domain"
	"live-auction/internal/services"
	"live-auction/pkg/logger"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type AuctionHandler struct {
	ledger *services.Ledger
	log    logger.Logger
}

type CreateAuctionRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	ImageURL      string          `json:"image_url"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	DurationDays  int             `json:"duration_days"`
}

type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type BidListResponse struct {
	AuctionID string        `json:"auction_id"`
	Bids      []*domain.Bid `json:"bids"`
}

type PlaceBidResponse struct {
	Bid *domain.Bid `json:"bid"`
	// MinNextBid is what the next bidder has to offer.
	MinNextBid decimal.Decimal `json:"min_next_bid"`
}

func NewAuctionHandler(ledger *services.Ledger, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		ledger: ledger,
		log:    log,
	}
}

// Register mounts the REST routes under g. Identity must run before them.
func (h *AuctionHandler) Register(g *echo.Group) {
	g.POST("/auctions", h.CreateAuction)
	g.GET("/auctions/:id", h.GetAuction)
	g.GET("/auctions/:id/bids", h.ListBids)
	g.POST("/auctions/:id/bids", h.PlaceBid)
	g.GET("/users/me/auctions", h.ListMyAuctions)
	g.GET("/users/me/bids", h.ListMyBids)
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	owner := middleware.UserID(c)
	h.log.Debug("CreateAuction endpoint called", "owner_id", owner, "remote_addr", c.RealIP())

	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		h.log.Info("Failed to bind request", "error", err)
		return h.fail(c, domain.Reject(domain.ErrInvalidSpec, "invalid request body"))
	}

	auction, err := h.ledger.CreateAuction(c.Request().Context(), domain.AuctionSpec{
		Title:         req.Title,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		StartingPrice: req.StartingPrice,
		DurationDays:  req.DurationDays,
		OwnerID:       owner,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, auction)
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.ledger.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, auction)
}

func (h *AuctionHandler) ListBids(c echo.Context) error {
	auctionID := c.Param("id")
	bids, err := h.ledger.ListBids(c.Request().Context(), auctionID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, BidListResponse{AuctionID: auctionID, Bids: nonNil(bids)})
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	auctionID := c.Param("id")
	bidder := middleware.UserID(c)

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, domain.Reject(domain.ErrInvalidAmount, "amount must be a decimal number"))
	}

	bid, err := h.ledger.SubmitBid(c.Request().Context(), domain.BidRequest{
		AuctionID: auctionID,
		BidderID:  bidder,
		Amount:    req.Amount,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, PlaceBidResponse{
		Bid:        bid,
		MinNextBid: h.ledger.MinimumBid(bid.Amount),
	})
}

func (h *AuctionHandler) ListMyAuctions(c echo.Context) error {
	auctions, err := h.ledger.ListAuctionsByOwner(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(auctions))
}

func (h *AuctionHandler) ListMyBids(c echo.Context) error {
	summaries, err := h.ledger.ListAuctionsBidOn(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(summaries))
}

func (h *AuctionHandler) fail(c echo.Context, err error) error {
	status := api.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}
	return c.JSON(status, api.NewErrorResponse(err))
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
