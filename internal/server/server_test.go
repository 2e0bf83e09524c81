package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"publishelf/internal/app"
	"publishelf/internal/bidtoken"
	"publishelf/internal/ratelimit"
	"publishelf/pkg/domain"
	"publishelf/pkg/pricecache"
	"publishelf/pkg/store"
)

const (
	testSecret        = "server-test-secret"
	testInternalToken = "internal-test-token"
)

type testEnv struct {
	srv *httptest.Server
	now time.Time
	app *app.App
}

func newTestEnv(t *testing.T, limiter *ratelimit.BidLimiter, cache *pricecache.Cache) *testEnv {
	t.Helper()
	env := &testEnv{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	a, err := app.New(app.Config{
		Store: store.NewMemoryStore(),
		Cache: cache,
		Now:   func() time.Time { return env.now },
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	env.app = a

	verifier, err := bidtoken.NewVerifier(bidtoken.Config{
		Secret:   testSecret,
		Issuer:   "publishelf-auth",
		Audience: "publishelf-auction",
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	s, err := New(Config{
		App:           a,
		TokenVerifier: verifier,
		Limiter:       limiter,
		InternalToken: testInternalToken,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.srv = httptest.NewServer(s.Router())
	t.Cleanup(env.srv.Close)
	return env
}

func buyerToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   subject,
		"name":  "Ravi Iyer",
		"email": subject + "@example.com",
		"iss":   "publishelf-auth",
		"aud":   "publishelf-auction",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (env *testEnv) createLot(t *testing.T, basePrice int64, start, end time.Time) domain.AuctionLot {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"title":        "Malgudi Days, first edition",
		"author":       "R. K. Narayan",
		"condition":    "Very Good",
		"basePrice":    basePrice,
		"auctionStart": start,
		"auctionEnd":   end,
		"ownerId":      "publisher-1",
	})
	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/internal/auctions", bytes.NewReader(body))
	req.Header.Set("X-Internal-Token", testInternalToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create lot status = %d", resp.StatusCode)
	}
	var lot domain.AuctionLot
	if err := json.NewDecoder(resp.Body).Decode(&lot); err != nil {
		t.Fatalf("decode lot: %v", err)
	}
	return lot
}

func (env *testEnv) submitBid(t *testing.T, lotID, token string, amount int64, idemKey string) *http.Response {
	t.Helper()
	body := fmt.Sprintf(`{"amount": %d}`, amount)
	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/auctions/"+lotID+"/bids", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestInternalLotCreationRequiresServiceToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/internal/auctions", bytes.NewBufferString(`{}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLotCreationRejectsShortWindow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	body, _ := json.Marshal(map[string]any{
		"title":        "A",
		"author":       "B",
		"condition":    "Good",
		"basePrice":    100,
		"auctionStart": env.now,
		"auctionEnd":   env.now.Add(30 * time.Minute),
		"ownerId":      "publisher-1",
	})
	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/internal/auctions", bytes.NewReader(body))
	req.Header.Set("X-Internal-Token", testInternalToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var errBody struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &errBody)
	if resp.StatusCode != http.StatusBadRequest || errBody.Code != "AUCTION_INVALID_LOT" {
		t.Fatalf("status=%d code=%q", resp.StatusCode, errBody.Code)
	}
}

func TestSubmitBidRequiresAuth(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	lot := env.createLot(t, 500, env.now.Add(-time.Hour), env.now.Add(time.Hour))

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/auctions/"+lot.ID+"/bids", bytes.NewBufferString(`{"amount": 600}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", resp.StatusCode)
	}
}

func TestSubmitBidFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	lot := env.createLot(t, 500, env.now.Add(-time.Hour), env.now.Add(time.Hour))
	token := buyerToken(t, "buyer-1")

	// 599 rejected with the actionable minimum.
	resp := env.submitBid(t, lot.ID, token, 599, "")
	var rej struct {
		Code       string          `json:"code"`
		MinimumBid decimal.Decimal `json:"minimumBid"`
	}
	decodeBody(t, resp, &rej)
	if resp.StatusCode != http.StatusConflict || rej.Code != "AUCTION_BID_BELOW_MINIMUM" {
		t.Fatalf("status=%d code=%q", resp.StatusCode, rej.Code)
	}
	if !rej.MinimumBid.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("minimumBid = %s, want 600", rej.MinimumBid)
	}

	// 600 accepted.
	resp = env.submitBid(t, lot.ID, token, 600, "")
	var accepted struct {
		Bid          domain.Bid      `json:"bid"`
		CurrentPrice decimal.Decimal `json:"currentPrice"`
	}
	decodeBody(t, resp, &accepted)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("accept status = %d, want 201", resp.StatusCode)
	}
	if !accepted.CurrentPrice.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("currentPrice = %s, want 600", accepted.CurrentPrice)
	}
	if accepted.Bid.BidderID != "buyer-1" {
		t.Fatalf("bidderId = %q", accepted.Bid.BidderID)
	}

	// Detail shows the ledger with the bidder identity resolved.
	var detail struct {
		Status         domain.Status   `json:"status"`
		MinimumNextBid decimal.Decimal `json:"minimumNextBid"`
		Bids           []struct {
			BidderName string `json:"bidderName"`
		} `json:"bids"`
	}
	resp, err := http.Get(env.srv.URL + "/auctions/" + lot.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	decodeBody(t, resp, &detail)
	if detail.Status != domain.StatusActive {
		t.Fatalf("status = %q, want active", detail.Status)
	}
	if !detail.MinimumNextBid.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("minimumNextBid = %s, want 700", detail.MinimumNextBid)
	}
	if len(detail.Bids) != 1 || detail.Bids[0].BidderName != "Ravi Iyer" {
		t.Fatalf("bidder identity not resolved: %+v", detail.Bids)
	}
}

func TestSubmitBidAfterCloseAndListing(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	lot := env.createLot(t, 1000, env.now.Add(-3*time.Hour), env.now.Add(-time.Second))
	token := buyerToken(t, "buyer-1")

	resp := env.submitBid(t, lot.ID, token, 2000, "")
	var rej struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &rej)
	if resp.StatusCode != http.StatusConflict || rej.Code != "AUCTION_NOT_ACTIVE" {
		t.Fatalf("status=%d code=%q", resp.StatusCode, rej.Code)
	}

	var parts struct {
		Upcoming []domain.AuctionLot `json:"upcoming"`
		Active   []domain.AuctionLot `json:"active"`
		Ended    []domain.AuctionLot `json:"ended"`
	}
	listResp, err := http.Get(env.srv.URL + "/auctions")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	decodeBody(t, listResp, &parts)
	if len(parts.Ended) != 1 || parts.Ended[0].ID != lot.ID {
		t.Fatalf("lot should be listed as ended: %+v", parts)
	}
}

func TestSubmitBidUnknownLot(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp := env.submitBid(t, "no-such-lot", buyerToken(t, "buyer-1"), 600, "")
	var errBody struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &errBody)
	if resp.StatusCode != http.StatusNotFound || errBody.Code != "AUCTION_NOT_FOUND" {
		t.Fatalf("status=%d code=%q", resp.StatusCode, errBody.Code)
	}
}

func TestSubmitBidIdempotentRetry(t *testing.T) {
	redis := miniredis.RunT(t)
	cache := pricecache.New(redis.Addr(), "")
	env := newTestEnv(t, nil, cache)
	lot := env.createLot(t, 500, env.now.Add(-time.Hour), env.now.Add(time.Hour))
	token := buyerToken(t, "buyer-1")

	first := env.submitBid(t, lot.ID, token, 600, "attempt-9")
	var firstBody struct {
		Bid domain.Bid `json:"bid"`
	}
	decodeBody(t, first, &firstBody)
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first status = %d", first.StatusCode)
	}

	retry := env.submitBid(t, lot.ID, token, 600, "attempt-9")
	var retryBody struct {
		Bid      domain.Bid `json:"bid"`
		Replayed bool       `json:"replayed"`
	}
	decodeBody(t, retry, &retryBody)
	if retry.StatusCode != http.StatusOK {
		t.Fatalf("retry status = %d, want 200", retry.StatusCode)
	}
	if !retryBody.Replayed || retryBody.Bid.ID != firstBody.Bid.ID {
		t.Fatalf("retry did not replay original bid: %+v", retryBody)
	}
}

func TestSubmitBidRateLimited(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewBidLimiter(redis.Addr(), "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	env := newTestEnv(t, limiter, nil)
	lot := env.createLot(t, 500, env.now.Add(-time.Hour), env.now.Add(time.Hour))
	token := buyerToken(t, "buyer-1")

	resp := env.submitBid(t, lot.ID, token, 600, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first bid status = %d", resp.StatusCode)
	}
	resp = env.submitBid(t, lot.ID, token, 700, "")
	var errBody struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &errBody)
	if resp.StatusCode != http.StatusTooManyRequests || errBody.Code != "AUCTION_RATE_LIMITED" {
		t.Fatalf("status=%d code=%q", resp.StatusCode, errBody.Code)
	}
}
