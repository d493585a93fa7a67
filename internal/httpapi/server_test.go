package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/kds"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/metrics"
	"github.com/roach88/galley/internal/queue"
	"github.com/roach88/galley/internal/recipe"
	"github.com/roach88/galley/internal/retry"
	"github.com/roach88/galley/internal/testutil"
)

type fixture struct {
	srv   *Server
	queue *queue.Queue
}

func newFixture(t *testing.T, policy ledger.Policy) fixture {
	t.Helper()
	cat := testutil.CafeCatalog()
	led := ledger.New(ledger.NewMemoryStore(testutil.CafeData().Inventory), policy)
	q := queue.New(cat,
		recipe.NewResolver(cat, recipe.NewNameMatcher(recipe.DefaultDecafMarkers...)),
		led,
		queue.WithIDGenerator(testutil.NewSequenceIDs("order")),
		queue.WithClock(testutil.NewStepClock().Now),
	)
	fast := retry.Policy{Attempts: 2, Initial: time.Millisecond, Max: time.Millisecond}
	d := kds.New(q, kds.WithRetry(fast))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(q, d, led,
		WithRetry(fast),
		WithLogger(logger),
		WithMetrics(metrics.New("galley_test")),
	)
	return fixture{srv: srv, queue: q}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const latteBody = `{"lines":[{"menu_item_id":"latte","quantity":1}]}`

func TestSubmitAndGet(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)

	rec := f.do(t, http.MethodPost, "/tenants/cafe-a/orders", `{"lines":[{"menu_item_id":"latte","quantity":2,"modifier_ids":["oat"]}],"customer_ref":"table 4"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decode[domain.Order](t, rec)
	assert.Equal(t, "order-1", o.ID)
	assert.Equal(t, domain.StatusQueued, o.Status)
	assert.Equal(t, "table 4", o.CustomerRef)
	assert.Equal(t, "Latte", o.Lines[0].ItemName)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	rec = f.do(t, http.MethodGet, "/tenants/cafe-a/orders/order-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, o.ID, decode[domain.Order](t, rec).ID)

	rec = f.do(t, http.MethodGet, "/tenants/cafe-b/orders/order-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, string(domain.ErrCodeOrderNotFound), body.Error.Code)
}

func TestSubmit_ValidationErrors(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"empty order", "/tenants/cafe-a/orders", `{"lines":[]}`, http.StatusBadRequest, string(domain.ErrCodeEmptyOrder)},
		{"other tenant's item", "/tenants/cafe-a/orders", `{"lines":[{"menu_item_id":"bagel","quantity":1}]}`, http.StatusUnprocessableEntity, string(domain.ErrCodeTenantMismatch)},
		{"malformed json", "/tenants/cafe-a/orders", `{"lines":`, http.StatusBadRequest, codeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[errorBody](t, rec).Error.Code)
		})
	}
}

func TestSubmit_CustomerCannotSkipDeduction(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)

	body := `{"lines":[{"menu_item_id":"latte","quantity":1,"voided":true},{"menu_item_id":"steamer","quantity":1,"voided":true}],"skip_deduction":true}`
	rec := f.do(t, http.MethodPost, "/tenants/cafe-a/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decode[domain.Order](t, rec)
	assert.False(t, o.SkipDeduction)
	for _, l := range o.Lines {
		assert.False(t, l.Voided)
	}

	var res advanceResponse
	for i := 0; i < 3; i++ {
		rec = f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-1/bump", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res = decode[advanceResponse](t, rec)
	}
	assert.True(t, res.Deducted)
	assert.Equal(t, []domain.Deduction{
		{ItemID: "espresso_beans", Quantity: 18},
		{ItemID: "milk", Quantity: 400},
	}, res.Deductions)
}

func TestEdit_CustomerCannotVoidLines(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/tenants/cafe-a/orders", latteBody).Code)

	rec := f.do(t, http.MethodPut, "/tenants/cafe-a/orders/order-1/lines", `{"lines":[{"menu_item_id":"latte","quantity":2,"voided":true}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	o := decode[domain.Order](t, rec)
	require.Len(t, o.Lines, 1)
	assert.False(t, o.Lines[0].Voided)
	assert.Equal(t, 2, o.Lines[0].Quantity)
}

func TestKDS_StationVoidsLines(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/tenants/cafe-a/orders", latteBody).Code)

	rec := f.do(t, http.MethodPut, "/tenants/cafe-a/kds/orders/order-1/lines", `{"lines":[{"menu_item_id":"latte","quantity":1},{"menu_item_id":"steamer","quantity":1,"voided":true}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	o := decode[domain.Order](t, rec)
	require.Len(t, o.Lines, 2)
	assert.True(t, o.Lines[1].Voided)

	rec = f.do(t, http.MethodPut, "/tenants/cafe-a/kds/orders/order-1/lines", `{"lines":[{"menu_item_id":"latte","quantity":1,"voided":true}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(domain.ErrCodeEmptyOrder), decode[errorBody](t, rec).Error.Code)
}

func TestKDS_PrepTaskSkipsDeduction(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)

	rec := f.do(t, http.MethodPost, "/tenants/cafe-a/kds/tasks", `{"lines":[{"menu_item_id":"steamer","quantity":2}],"ref":"opening"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decode[domain.Order](t, rec)
	assert.True(t, o.SkipDeduction)
	assert.Equal(t, "opening", o.CustomerRef)

	var res advanceResponse
	for i := 0; i < 3; i++ {
		rec = f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/"+o.ID+"/bump", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res = decode[advanceResponse](t, rec)
	}
	assert.Equal(t, domain.StatusCompleted, res.Order.Status)
	assert.False(t, res.Deducted)
	assert.Empty(t, res.Deductions)
}

func TestKDS_BumpToCompletionDeductsOnce(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/tenants/cafe-a/orders", latteBody).Code)

	var last advanceResponse
	for _, want := range []domain.Status{domain.StatusInProgress, domain.StatusReady, domain.StatusCompleted} {
		rec := f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-1/bump", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		last = decode[advanceResponse](t, rec)
		assert.Equal(t, want, last.Order.Status)
	}
	assert.True(t, last.Deducted)
	assert.Equal(t, []domain.Deduction{{ItemID: "espresso_beans", Quantity: 18}, {ItemID: "milk", Quantity: 200}}, last.Deductions)

	rec := f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-1/advance", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	dup := decode[advanceResponse](t, rec)
	assert.True(t, dup.Duplicate)
	assert.False(t, dup.Deducted)

	rec = f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-1/bump", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/tenants/cafe-a/stock?item=milk,espresso_beans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stock := decode[struct {
		Policy ledger.Policy       `json:"policy"`
		Levels []domain.StockLevel `json:"levels"`
	}](t, rec)
	assert.Equal(t, ledger.PolicyHard, stock.Policy)
	assert.ElementsMatch(t, []domain.StockLevel{{ItemID: "milk", Stock: 800}, {ItemID: "espresso_beans", Stock: 482}}, stock.Levels)

	rec = f.do(t, http.MethodGet, "/tenants/cafe-a/stock/history?item=milk", "")
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[struct {
		Movements []ledger.Movement `json:"movements"`
	}](t, rec)
	require.Len(t, hist.Movements, 1)
	assert.Equal(t, "order-1", hist.Movements[0].OrderID)

	rec = f.do(t, http.MethodGet, "/tenants/cafe-a/orders/order-1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	log := decode[struct {
		Transitions []queue.Transition `json:"transitions"`
	}](t, rec)
	assert.Len(t, log.Transitions, 4)
}

func TestKDS_CompletionErrors(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/tenants/cafe-a/orders", `{"lines":[{"menu_item_id":"muffin","quantity":1}]}`).Code)

	rec := f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-1/advance", `{"status":"completed"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "queued cannot jump to completed")
	assert.Equal(t, string(domain.ErrCodeInvalidTransition), decode[errorBody](t, rec).Error.Code)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-1/bump", "").Code)
	}
	rec = f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-1/bump", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, string(domain.ErrCodeDanglingReference), body.Error.Code)
	assert.Equal(t, "muffin_batter", body.Error.ItemID)

	rec = f.do(t, http.MethodGet, "/tenants/cafe-a/orders/order-1", "")
	assert.Equal(t, domain.StatusReady, decode[domain.Order](t, rec).Status)
}

func TestKDS_SoftPolicyReportsWarnings(t *testing.T) {
	f := newFixture(t, ledger.PolicySoft)
	body := `{"lines":[{"menu_item_id":"steamer","quantity":6}]}`
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/tenants/cafe-a/orders", body).Code)

	var res advanceResponse
	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-1/bump", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res = decode[advanceResponse](t, rec)
	}
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, string(domain.ErrCodeLowStockWarning), res.Warnings[0].Code)
	assert.Equal(t, "milk", res.Warnings[0].ItemID)
}

func TestKDS_ViewReorderCancelEdit(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/tenants/cafe-a/orders", latteBody).Code)
	}

	rec := f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-3/reorder", `{"next_id":"order-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-2/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusCancelled, decode[domain.Order](t, rec).Status)

	rec = f.do(t, http.MethodPut, "/tenants/cafe-a/kds/orders/order-1/lines", `{"lines":[{"menu_item_id":"americano","quantity":1,"modifier_ids":["decaf"]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/tenants/cafe-a/kds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[kds.View](t, rec)
	require.Len(t, v.Tickets, 2)
	assert.Equal(t, "order-3", v.Tickets[0].OrderID)
	assert.Equal(t, "order-1", v.Tickets[1].OrderID)
	assert.Equal(t, "Americano", v.Tickets[1].Items[0].Name)

	rec = f.do(t, http.MethodPut, "/tenants/cafe-a/kds/orders/order-2/lines", latteBody)
	assert.Equal(t, http.StatusConflict, rec.Code, "cancelled orders are immutable")

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/tenants/cafe-a/kds/orders/order-3/bump", "").Code)
	rec = f.do(t, http.MethodGet, "/tenants/cafe-a/kds?status=in_progress", "")
	v = decode[kds.View](t, rec)
	require.Len(t, v.Tickets, 1)
	assert.Equal(t, "order-3", v.Tickets[0].OrderID)

	rec = f.do(t, http.MethodGet, "/tenants/cafe-a/kds?status=eaten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKDS_Stream(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/tenants/cafe-a/kds/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewReader(resp.Body)
	next := func() kds.View {
		t.Helper()
		for {
			line, err := lines.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var v kds.View
				require.NoError(t, json.Unmarshal([]byte(data), &v))
				return v
			}
		}
	}

	assert.Empty(t, next().Tickets)

	_, err = f.queue.Submit(context.Background(), testutil.CafeA, []domain.OrderLine{{MenuItemID: "latte", Quantity: 1}})
	require.NoError(t, err)
	v := next()
	require.Len(t, v.Tickets, 1)
	assert.Equal(t, "order-1", v.Tickets[0].OrderID)
}

func TestErrorResponse_StatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewEmptyOrder("t", "o"), http.StatusBadRequest},
		{domain.NewOrderNotFound("t", "o"), http.StatusNotFound},
		{domain.NewImmutableOrder("t", "o", domain.StatusCompleted), http.StatusConflict},
		{domain.NewInvalidTransition("t", "o", domain.StatusQueued, domain.StatusReady), http.StatusConflict},
		{domain.NewTenantMismatch("t", "menu item", "x"), http.StatusUnprocessableEntity},
		{domain.NewInsufficientStock("t", "milk", 1, 2), http.StatusUnprocessableEntity},
		{domain.NewStoreUnavailable("op", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := errorResponse(tt.err)
		assert.Equal(t, tt.want, status, tt.err.Error())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, ledger.PolicyHard)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/tenants/cafe-a/orders", latteBody).Code)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "galley_test_orders_submitted_total")

	rec = f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, decode[errorBody](t, rec).Error.Code)
}
