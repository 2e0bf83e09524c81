package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"publishelf/internal/app"
	"publishelf/internal/bidtoken"
	"publishelf/internal/ratelimit"
	"publishelf/internal/util"
	"publishelf/pkg/auction"
	"publishelf/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *bidtoken.Verifier
	Limiter       *ratelimit.BidLimiter // optional
	InternalToken string
}

// Server exposes the auction service's HTTP endpoints.
type Server struct {
	app           *app.App
	verifier      *bidtoken.Verifier
	limiter       *ratelimit.BidLimiter
	internalToken string
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("server: token verifier is required")
	}
	if strings.TrimSpace(cfg.InternalToken) == "" {
		return nil, errors.New("server: internal token is required")
	}
	s := &Server{
		app:           cfg.App,
		verifier:      cfg.TokenVerifier,
		limiter:       cfg.Limiter,
		internalToken: cfg.InternalToken,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("auction", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/auctions", s.handleListAuctions)
	s.mux.HandleFunc("/auctions/", s.handleAuctionByID)
	s.mux.Handle("/internal/auctions", s.withInternal(s.handleCreateLot))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withInternal(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-Internal-Token"))
		if token == "" || token != s.internalToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) bidderFromRequest(w http.ResponseWriter, r *http.Request) (domain.Bidder, bool) {
	token, ok := bidtoken.BearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.Bidder{}, false
	}
	bidder, err := s.verifier.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return domain.Bidder{}, false
	}
	return bidder, true
}

// GET /auctions — partitioned listing. Clients poll this; the partitioning
// is derived server-side from the clock at the instant of the read.
func (s *Server) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	parts, err := s.app.ListAuctions(r.Context())
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("list auctions failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

// /auctions/{id} or /auctions/{id}/bids
func (s *Server) handleAuctionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/auctions/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] == "bids" {
			s.handleSubmitBid(w, r, id)
			return
		}
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.handleAuctionDetail(w, r, id)
}

func (s *Server) handleAuctionDetail(w http.ResponseWriter, r *http.Request, id string) {
	detail, err := s.app.GetAuction(r.Context(), id)
	if err != nil {
		if errors.Is(err, app.ErrLotNotFound) {
			notFound(w, "auction not found")
			return
		}
		util.LoggerFromContext(r.Context()).Error("auction detail failed", "lot_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type submitBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// POST /auctions/{id}/bids
func (s *Server) handleSubmitBid(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	bidder, ok := s.bidderFromRequest(w, r)
	if !ok {
		return
	}
	if s.limiter != nil && !s.limiter.Allow(r.Context(), bidder.ID) {
		writeError(w, http.StatusTooManyRequests, "too many bids")
		return
	}
	var req submitBidRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	res, err := s.app.SubmitBid(r.Context(), id, bidder, req.Amount, idempotencyKey)
	if err != nil {
		var rej *app.RejectionError
		switch {
		case errors.As(err, &rej):
			writeJSON(w, http.StatusConflict, rejectionResponse{
				Error:      rej.Reason,
				Code:       rejectionCode(rej.Reason),
				MinimumBid: rej.MinimumAcceptable,
				RequestID:  requestID(w),
			})
		case errors.Is(err, app.ErrLotNotFound):
			notFound(w, "auction not found")
		default:
			util.LoggerFromContext(r.Context()).Error("submit bid failed", "lot_id", id, "err", err)
			writeError(w, http.StatusServiceUnavailable, "submission failed, retry")
		}
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

type createLotRequest struct {
	Title        string          `json:"title"`
	Author       string          `json:"author"`
	Description  string          `json:"description"`
	Genre        string          `json:"genre"`
	Condition    string          `json:"condition"`
	BasePrice    decimal.Decimal `json:"basePrice"`
	AuctionStart time.Time       `json:"auctionStart"`
	AuctionEnd   time.Time       `json:"auctionEnd"`
	OwnerID      string          `json:"ownerId"`
}

// POST /internal/auctions — lot creation, called by the publisher-facing
// backend after moderation. Window and price invariants are enforced here
// regardless of what the creation form already checked.
func (s *Server) handleCreateLot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req createLotRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	lot, err := s.app.CreateLot(r.Context(), app.CreateLotInput{
		Title:        req.Title,
		Author:       req.Author,
		Description:  req.Description,
		Genre:        req.Genre,
		Condition:    req.Condition,
		BasePrice:    req.BasePrice,
		AuctionStart: req.AuctionStart,
		AuctionEnd:   req.AuctionEnd,
		OwnerID:      req.OwnerID,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidLot) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		util.LoggerFromContext(r.Context()).Error("create lot failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

type rejectionResponse struct {
	Error      string          `json:"error"`
	Code       string          `json:"code"`
	MinimumBid decimal.Decimal `json:"minimumBid"`
	RequestID  string          `json:"requestId,omitempty"`
}

func requestID(w http.ResponseWriter) string {
	return strings.TrimSpace(w.Header().Get("X-Request-Id"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForAuction(status, msg),
		RequestID: requestID(w),
	})
}

func rejectionCode(reason string) string {
	switch reason {
	case auction.ReasonNotActive:
		return "AUCTION_NOT_ACTIVE"
	case auction.ReasonBelowMinimum:
		return "AUCTION_BID_BELOW_MINIMUM"
	default:
		return "AUCTION_BID_REJECTED"
	}
}

func errorCodeForAuction(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "auction not found":
		return "AUCTION_NOT_FOUND"
	case message == "too many bids":
		return "AUCTION_RATE_LIMITED"
	case message == "invalid json body":
		return "AUCTION_INVALID_REQUEST"
	case strings.HasPrefix(message, "invalid auction lot"):
		return "AUCTION_INVALID_LOT"
	case message == "submission failed, retry":
		return "AUCTION_SUBMISSION_RETRY"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "AUCTION_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusNotFound:
		return "AUCTION_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
