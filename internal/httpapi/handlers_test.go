package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-wallet/internal/audit"
	"storefront-wallet/internal/auth"
	"storefront-wallet/internal/config"
	"storefront-wallet/internal/events"
	"storefront-wallet/internal/reconcile"
	"storefront-wallet/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type testAPI struct {
	router *gin.Engine
	tokens *auth.Manager
	audit  *audit.MemoryRepo
}

func newTestAPI(t *testing.T, store wallet.Store) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "storefront",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	repo := audit.NewMemoryRepo()
	auditSvc := audit.NewService(repo)
	svc := wallet.NewService(store, wallet.WithAuditRecorder(wallet.AuditAdapter{Audit: auditSvc}))
	h := Handlers{
		Wallet: svc,
		Audit:  auditSvc,
		Events: events.NewDispatcher(events.NewAdapter(svc, events.DefaultRules()), nil),
	}
	if rd, ok := store.(reconcile.JournalReader); ok {
		h.Reconcile = reconcile.NewService(rd, nil)
	}

	r := gin.New()
	h.Register(r, auth.RequireAccessToken(m))
	return &testAPI{router: r, tokens: m, audit: repo}
}

func (a *testAPI) token(t *testing.T, userID, role string) string {
	t.Helper()
	pair, err := a.tokens.IssuePair(time.Now(), userID, role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return pair.AccessToken
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func memoryAPI(t *testing.T) *testAPI {
	return newTestAPI(t, wallet.NewMemoryStore(wallet.DefaultRates()))
}

func TestWalletRoutesRequireToken(t *testing.T) {
	api := memoryAPI(t)
	if w := api.do(t, http.MethodGet, "/v1/wallet", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestGetWalletShowsBreakdown(t *testing.T) {
	api := memoryAPI(t)
	admin := api.token(t, "ops-1", "admin")
	for _, body := range []map[string]string{
		{"kind": "loyalty_coins", "amount": "100"},
		{"kind": "affiliate_earnings", "amount": "10.50"},
	} {
		if w := api.do(t, http.MethodPost, "/v1/admin/wallets/u1/credit", admin, body); w.Code != http.StatusOK {
			t.Fatalf("credit: %d %s", w.Code, w.Body.String())
		}
	}

	w := api.do(t, http.MethodGet, "/v1/wallet", api.token(t, "u1", "customer"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[walletResponse](t, w)
	if !resp.Wallet.SpendableTotal.Equal(d("10.00")) || !resp.Breakdown.SpendableTotal.Equal(d("10.00")) {
		t.Fatalf("unexpected spendable total: %+v", resp)
	}
	line, ok := resp.Breakdown.Line(wallet.KindAffiliateEarnings)
	if !ok || line.Spendable || !line.Amount.Equal(d("10.50")) {
		t.Fatalf("unexpected affiliate line: %+v", line)
	}
}

func TestRedeemErrorsMapToStatus(t *testing.T) {
	api := memoryAPI(t)
	admin := api.token(t, "ops-1", "admin")
	customer := api.token(t, "u1", "customer")
	api.do(t, http.MethodPost, "/v1/admin/wallets/u1/credit", admin, map[string]string{"kind": "loyalty_coins", "amount": "10"})
	api.do(t, http.MethodPost, "/v1/admin/wallets/u1/credit", admin, map[string]string{"kind": "instagram_rewards", "amount": "10"})

	w := api.do(t, http.MethodPost, "/v1/wallet/redeem", customer, map[string]string{"kind": "loyalty_coins", "amount": "15", "reference_id": "cart-0"})
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
	if body := decode[map[string]any](t, w); body["error"] != "insufficient_balance" || body["available"] != "10" {
		t.Fatalf("unexpected body: %v", body)
	}

	w = api.do(t, http.MethodPost, "/v1/wallet/redeem", customer, map[string]string{"kind": "instagram_rewards", "amount": "5", "reference_id": "cart-0"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	w = api.do(t, http.MethodPost, "/v1/wallet/redeem", customer, map[string]string{"kind": "loyalty_coins", "amount": "1.5", "reference_id": "cart-0"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = api.do(t, http.MethodPost, "/v1/wallet/redeem", customer, map[string]string{"kind": "loyalty_coins", "amount": "4"})
	if w.Code != http.StatusBadRequest || decode[map[string]any](t, w)["error"] != "invalid_argument" {
		t.Fatalf("expected 400 invalid_argument without reference_id, got %d %s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodPost, "/v1/wallet/redeem", customer, map[string]string{"kind": "loyalty_coins", "amount": "4", "reference_id": "cart-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if got := decode[walletResponse](t, w).Wallet.Balances.Get(wallet.KindLoyaltyCoins); !got.Equal(d("6")) {
		t.Fatalf("expected 6 coins left, got %s", got)
	}

	if w := api.do(t, http.MethodPost, "/v1/wallet/redeem", customer, "{"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", w.Code)
	}
}

func TestAssignRoleIsPermanentAndAudited(t *testing.T) {
	api := memoryAPI(t)
	customer := api.token(t, "u1", "customer")

	if w := api.do(t, http.MethodPost, "/v1/wallet/role", customer, map[string]string{"role": "affiliate"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := api.do(t, http.MethodPost, "/v1/wallet/role", customer, map[string]string{"role": "affiliate"}); w.Code != http.StatusOK {
		t.Fatalf("expected idempotent 200, got %d", w.Code)
	}
	w := api.do(t, http.MethodPost, "/v1/wallet/role", customer, map[string]string{"role": "instagram"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if body := decode[map[string]any](t, w); body["current_role"] != "affiliate" {
		t.Fatalf("unexpected body: %v", body)
	}
	if w := api.do(t, http.MethodPost, "/v1/wallet/role", customer, map[string]string{"role": "gold"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	evs := api.audit.ForUser("u1")
	if len(evs) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(evs))
	}
	if evs[0].ActorUserID != "u1" || evs[0].Outcome != "applied" || evs[1].Outcome != "noop" || evs[2].Outcome != wallet.OutcomeLocked {
		t.Fatalf("unexpected audit events: %+v", evs)
	}
}

func TestAdminCreditWithReferenceIsIdempotent(t *testing.T) {
	api := memoryAPI(t)
	admin := api.token(t, "ops-1", "admin")
	body := map[string]string{"kind": "refund_credits", "amount": "12.00", "reference_id": "ticket-9", "description": "goodwill"}

	first := decode[map[string]any](t, api.do(t, http.MethodPost, "/v1/admin/wallets/u1/credit", admin, body))
	second := decode[map[string]any](t, api.do(t, http.MethodPost, "/v1/admin/wallets/u1/credit", admin, body))
	if first["applied"] != true || second["applied"] != false {
		t.Fatalf("unexpected applied flags: %v / %v", first["applied"], second["applied"])
	}

	w := api.do(t, http.MethodGet, "/v1/admin/wallets/u1", admin, nil)
	if got := decode[walletResponse](t, w).Wallet.Balances.Get(wallet.KindRefundCredits); !got.Equal(d("12")) {
		t.Fatalf("expected 12.00 refund credits, got %s", got)
	}

	evs := api.audit.ForUser("u1")
	if len(evs) != 2 || evs[0].Type != audit.EventTypeAdminAdjustment || evs[1].Outcome != wallet.OutcomeDuplicate {
		t.Fatalf("unexpected audit events: %+v", evs)
	}
	if evs[0].ActorUserID != "ops-1" || evs[0].Metadata != "goodwill" {
		t.Fatalf("unexpected actor: %+v", evs[0])
	}
}

func TestAdminAdjustmentRejectsEventSources(t *testing.T) {
	api := memoryAPI(t)
	admin := api.token(t, "ops-1", "admin")

	for _, path := range []string{"/v1/admin/wallets/u1/credit", "/v1/admin/wallets/u1/debit"} {
		body := map[string]string{"kind": "loyalty_coins", "amount": "5", "source": wallet.SourceOrderReward, "reference_id": "o-1"}
		if w := api.do(t, http.MethodPost, path, admin, body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 for event source, got %d %s", path, w.Code, w.Body.String())
		}
	}
	if evs := api.audit.ForUser("u1"); len(evs) != 0 {
		t.Fatalf("rejected adjustments must not be audited: %+v", evs)
	}

	w := api.do(t, http.MethodPost, "/v1/admin/wallets/u1/credit", admin, map[string]string{"kind": "loyalty_coins", "amount": "5", "source": "admin_goodwill"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin_ source, got %d %s", w.Code, w.Body.String())
	}
	w = api.do(t, http.MethodGet, "/v1/wallet/transactions", api.token(t, "u1", "customer"), nil)
	body := decode[struct {
		Transactions []wallet.Transaction `json:"transactions"`
	}](t, w)
	if len(body.Transactions) != 1 || body.Transactions[0].Source != "admin_goodwill" {
		t.Fatalf("unexpected journal: %+v", body.Transactions)
	}
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	api := memoryAPI(t)
	w := api.do(t, http.MethodPost, "/v1/admin/wallets/u2/credit", api.token(t, "u1", "customer"), map[string]string{"kind": "loyalty_coins", "amount": "1"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestAdminVerifyAndActivity(t *testing.T) {
	api := memoryAPI(t)
	admin := api.token(t, "ops-1", "admin")
	api.do(t, http.MethodPost, "/v1/admin/wallets/u1/credit", admin, map[string]string{"kind": "loyalty_coins", "amount": "30"})
	api.do(t, http.MethodPost, "/v1/admin/wallets/u1/debit", admin, map[string]string{"kind": "loyalty_coins", "amount": "5"})

	w := api.do(t, http.MethodGet, "/v1/admin/wallets/u1/verify", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if r := decode[reconcile.Report](t, w); !r.Consistent {
		t.Fatalf("expected consistent journal: %+v", r.Issues)
	}

	w = api.do(t, http.MethodGet, "/v1/admin/wallets/u1/activity?kind=loyalty_coins", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	sum := decode[reconcile.ActivitySummary](t, w)
	if len(sum.Sources) != 1 || !sum.Sources[0].Credits.Equal(d("30")) || !sum.Sources[0].Debits.Equal(d("5")) {
		t.Fatalf("unexpected activity: %+v", sum)
	}

	if w := api.do(t, http.MethodGet, "/v1/admin/wallets/u1/activity?from=yesterday", admin, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/v1/admin/wallets/u1/audit?limit=1", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuthorizeSpend(t *testing.T) {
	api := memoryAPI(t)
	api.do(t, http.MethodPost, "/v1/admin/wallets/u1/credit", api.token(t, "ops-1", "admin"), map[string]string{"kind": "promotional_credits", "amount": "8.00"})
	customer := api.token(t, "u1", "customer")

	if w := api.do(t, http.MethodPost, "/v1/wallet/authorize", customer, nil, "X-Wallet-Redeem-Value", "9.00"); w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
	if w := api.do(t, http.MethodPost, "/v1/wallet/authorize", customer, nil, "X-Wallet-Redeem-Value", "7.99"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestListTransactions(t *testing.T) {
	api := memoryAPI(t)
	admin := api.token(t, "ops-1", "admin")
	for _, amt := range []string{"1", "2", "3"} {
		api.do(t, http.MethodPost, "/v1/admin/wallets/u1/credit", admin, map[string]string{"kind": "loyalty_coins", "amount": amt})
	}
	customer := api.token(t, "u1", "customer")

	w := api.do(t, http.MethodGet, "/v1/wallet/transactions?limit=2", customer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode[struct {
		Transactions []wallet.Transaction `json:"transactions"`
	}](t, w)
	if len(body.Transactions) != 2 || !body.Transactions[0].Amount.Equal(d("3")) {
		t.Fatalf("unexpected transactions: %+v", body.Transactions)
	}
	if w := api.do(t, http.MethodGet, "/v1/wallet/transactions?limit=abc", customer, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestServiceTokenCannotUseCustomerRoutes(t *testing.T) {
	api := memoryAPI(t)
	if w := api.do(t, http.MethodGet, "/v1/wallet", api.token(t, "orders", "service"), nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestIngestEvent(t *testing.T) {
	api := memoryAPI(t)
	svcToken := api.token(t, "orders", "service")
	order := map[string]any{
		"id":      "evt-1",
		"type":    events.TypeOrderCompleted,
		"payload": map[string]string{"order_id": "o-1", "user_id": "u1", "order_total": "250.00"},
	}

	w := api.do(t, http.MethodPost, "/internal/events", svcToken, order)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	if body := decode[map[string]any](t, w); body["applied"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}
	w = api.do(t, http.MethodPost, "/internal/events", svcToken, order)
	if body := decode[map[string]any](t, w); w.Code != http.StatusOK || body["applied"] != float64(0) {
		t.Fatalf("expected duplicate delivery to apply nothing: %d %v", w.Code, body)
	}

	got := decode[walletResponse](t, api.do(t, http.MethodGet, "/v1/admin/wallets/u1", api.token(t, "ops-1", "admin"), nil))
	if !got.Wallet.Balances.Get(wallet.KindLoyaltyCoins).Equal(d("250")) {
		t.Fatalf("expected 250 coins, got %s", got.Wallet.Balances.Get(wallet.KindLoyaltyCoins))
	}

	unknown := map[string]any{"type": "order.shipped", "payload": map[string]string{}}
	if w := api.do(t, http.MethodPost, "/internal/events", svcToken, unknown); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := api.do(t, http.MethodPost, "/internal/events", svcToken, "not json"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := api.do(t, http.MethodPost, "/internal/events", api.token(t, "ops-1", "admin"), order); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin, got %d", w.Code)
	}
}

// downStore fails every call as if the database were unreachable.
type downStore struct{}

var errDown = &wallet.StoreUnavailableError{Op: "test", Err: errors.New("connection refused")}

func (downStore) GetWallet(context.Context, string) (wallet.Wallet, error) { return wallet.Wallet{}, errDown }
func (downStore) ListTransactions(context.Context, string, int) ([]wallet.Transaction, error) {
	return nil, errDown
}
func (downStore) ApplyDelta(context.Context, wallet.Delta) (wallet.ApplyResult, error) {
	return wallet.ApplyResult{}, errDown
}
func (downStore) SetRole(context.Context, string, wallet.MarketingRole, time.Time) (wallet.Wallet, bool, error) {
	return wallet.Wallet{}, false, errDown
}

func TestStoreOutageMapsTo503(t *testing.T) {
	api := newTestAPI(t, downStore{})
	customer := api.token(t, "u1", "customer")

	w := api.do(t, http.MethodGet, "/v1/wallet", customer, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if body := decode[map[string]any](t, w); body["message"] != nil {
		t.Fatalf("outage detail should not leak: %v", body)
	}

	order := map[string]any{
		"type":    events.TypeOrderCompleted,
		"payload": map[string]string{"order_id": "o-1", "user_id": "u1", "order_total": "10"},
	}
	if w := api.do(t, http.MethodPost, "/internal/events", api.token(t, "orders", "service"), order); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for transient event failure, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		wallet.ErrInvalidAmount:       400,
		wallet.ErrInvalidArgument:     400,
		wallet.ErrInvalidRole:         400,
		wallet.ErrInsufficientBalance: 402,
		wallet.ErrRoleRestricted:      403,
		wallet.ErrRoleLocked:          409,
		wallet.ErrStoreUnavailable:    503,
		errors.New("other"):           500,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
}
