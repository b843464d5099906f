package routes_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joy095/roomslot/controllers/admin_controller"
	"github.com/joy095/roomslot/controllers/booking_controller"
	"github.com/joy095/roomslot/controllers/payment_controller"
	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/shared_models"
	"github.com/joy095/roomslot/routes"
	"github.com/joy095/roomslot/services/click"
	"github.com/joy095/roomslot/services/payme"
	"github.com/joy095/roomslot/utils/jwt_parse"
	"github.com/joy095/roomslot/utils/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

const (
	clickService = 11
	clickSecret  = "click-secret"
	paymeKey     = "payme-key"
)

type harness struct {
	env    *testfixtures.Env
	router *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, func(*routes.Deps) {})
}

func newHarnessWith(t *testing.T, tweak func(*routes.Deps)) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := testfixtures.NewEnv(t)

	pa := payme.NewAdapter(env.Store, env.Ledger, env.Recon, env.Events, payme.Options{})
	ca := click.NewAdapter(env.Store, env.Ledger, env.Recon, env.Events, click.Options{ServiceID: clickService, SecretKey: clickSecret})

	deps := routes.Deps{
		Bookings:    booking_controller.NewBookingController(env.Bookings),
		Payments:    payment_controller.NewPaymentController(payme.NewServer(pa, "Paycom", paymeKey), ca),
		Admin:       admin_controller.NewAdminController(env.Bookings, env.Recon, env.Store, env.Events, time.Hour),
		JWTSecret:   testSecret,
		BookingRate: "100-1m",
	}
	tweak(&deps)
	return &harness{env: env, router: routes.NewRouter(deps)}
}

func token(t *testing.T, actor shared_models.Actor) string {
	t.Helper()
	tok, err := jwt_parse.SignToken(actor, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (h *harness) do(t *testing.T, method, path string, actor *shared_models.Actor, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("Authorization", token(t, *actor))
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func createBody(h *harness, start, end string) map[string]any {
	return map[string]any{
		"room_id": h.env.Room.ID,
		"slots":   []booking_models.TimeSlot{testfixtures.Slot(start, end)},
	}
}

func bookingField(t *testing.T, out map[string]any, key string) any {
	t.Helper()
	b, ok := out["booking"].(map[string]any)
	require.True(t, ok, "response has no booking: %v", out)
	return b[key]
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w, out := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok from roomslot service", out["message"])
}

func TestBookingFlow(t *testing.T) {
	h := newHarness(t)
	client, host := h.env.Client, h.env.Host

	w, out := h.do(t, http.MethodPost, "/bookings", &client, createBody(h, "10:00", "12:00"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := bookingField(t, out, "id").(string)
	assert.Equal(t, "pending", bookingField(t, out, "status"))
	assert.EqualValues(t, 10000, bookingField(t, out, "final_total"))

	w, out = h.do(t, http.MethodPost, "/bookings", &client, createBody(h, "12:15", "13:00"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "cooldown_conflict", out["reason"])
	assert.EqualValues(t, 0, out["slot_index"])

	w, _ = h.do(t, http.MethodPost, "/bookings/"+id+"/select", &client, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out = h.do(t, http.MethodPost, "/bookings/"+id+"/select", &host, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "selected", bookingField(t, out, "status"))

	w, out = h.do(t, http.MethodPost, "/bookings/"+id+"/confirm", &host, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", out["reason"])

	w, out = h.do(t, http.MethodPost, "/bookings/"+id+"/reject", &host, map[string]string{"reason": "maintenance"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "rejected", bookingField(t, out, "status"))
	assert.Equal(t, "maintenance", bookingField(t, out, "status_reason"))

	w, out = h.do(t, http.MethodGet, "/bookings/"+id, &client, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rejected", bookingField(t, out, "status"))
}

func TestBookingRoutes_Errors(t *testing.T) {
	h := newHarness(t)
	client, host := h.env.Client, h.env.Host

	w, out := h.do(t, http.MethodPost, "/bookings", nil, createBody(h, "10:00", "11:00"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", out["code"])

	req := httptest.NewRequest(http.MethodGet, "/bookings/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	w, out = h.do(t, http.MethodPost, "/bookings", &host, createBody(h, "10:00", "11:00"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", out["code"])

	w, _ = h.do(t, http.MethodPost, "/bookings", &client, map[string]any{"room_id": h.env.Room.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = h.do(t, http.MethodPost, "/bookings", &client, map[string]any{
		"room_id": uuid.New(),
		"slots":   []booking_models.TimeSlot{testfixtures.Slot("10:00", "11:00")},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Room not found", out["error"])

	w, _ = h.do(t, http.MethodGet, "/bookings/not-a-uuid", &client, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = h.do(t, http.MethodGet, "/bookings/"+uuid.NewString(), &client, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Booking not found", out["error"])
}

func TestAvailabilityRoute(t *testing.T) {
	h := newHarness(t)
	client := h.env.Client
	h.env.PendingBooking(t, testfixtures.Slot("10:00", "11:00"))

	w, out := h.do(t, http.MethodGet, fmt.Sprintf("/rooms/%s/availability?date=%s", h.env.Room.ID, testfixtures.Monday), &client, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, out["open"])
	assert.Len(t, out["busy"], 3)

	w, _ = h.do(t, http.MethodGet, fmt.Sprintf("/rooms/%s/availability", h.env.Room.ID), &client, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)
	agent, host := h.env.Agent, h.env.Host
	h.env.PendingBooking(t)

	w, _ := h.do(t, http.MethodPost, "/admin/bookings/sweep", &host, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	h.env.Clock.Advance(time.Hour)
	w, out := h.do(t, http.MethodPost, "/admin/bookings/sweep", &agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, out["swept"])

	h.env.Monitor.RecordConflict(t.Context(), h.env.Room.ID, "overlap")
	w, out = h.do(t, http.MethodGet, "/admin/contention?window=30m", &agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := out["report"].(map[string]any)
	assert.EqualValues(t, 1, report["total"])
	assert.Equal(t, []any{h.env.Room.ID.String()}, out["top_rooms"])

	w, _ = h.do(t, http.MethodGet, "/admin/contention?window=48h", &agent, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(t, http.MethodPost, "/admin/payments/reconcile?provider=stripe", &agent, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	q := url.Values{
		"provider": {"payme"},
		"from":     {testfixtures.Start.Add(-time.Hour).Format(time.RFC3339)},
		"to":       {testfixtures.Start.Add(time.Hour).Format(time.RFC3339)},
	}
	w, out = h.do(t, http.MethodPost, "/admin/payments/reconcile?"+q.Encode(), &agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, out["reconciled"])

	w, out = h.do(t, http.MethodPost, "/admin/bookings/"+uuid.NewString()+"/refund-settled", &agent, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymeRoute(t *testing.T) {
	h := newHarness(t)
	b := h.env.PayableBooking(t)

	call := func(auth, body string) map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/payments/payme", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", auth)
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var out map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:"+paymeKey))

	out := call(auth, fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"CheckPerformTransaction","params":{"amount":10000,"account":{"booking_ref":%q}}}`, b.RequestRef))
	assert.Nil(t, out["error"])
	assert.Equal(t, map[string]any{"allow": true}, out["result"])

	out = call("Basic bm9wZQ==", `{"jsonrpc":"2.0","id":2,"method":"CheckTransaction","params":{"id":"x"}}`)
	rpcErr := out["error"].(map[string]any)
	assert.EqualValues(t, payme.CodeInsufficientPrivilege, rpcErr["code"])
	assert.EqualValues(t, 2, out["id"])
}

func TestClickRoute(t *testing.T) {
	h := newHarness(t)
	b := h.env.PayableBooking(t)

	r := click.Request{
		ClickTransID:    "555",
		ServiceID:       strconv.Itoa(clickService),
		MerchantTransID: b.RequestRef,
		Amount:          click.FormatAmount(b.FinalTotal),
		Action:          "0",
		Error:           "0",
		SignTime:        "2026-10-01 09:00:00",
	}
	r.SignString = click.Sign(r, clickSecret)

	post := func(path string, form url.Values) map[string]any {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var out map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}

	out := post("/payments/click/prepare", r.Form())
	require.EqualValues(t, click.CodeSuccess, out["error"], out)
	prepareID := int64(out["merchant_prepare_id"].(float64))

	r.Action = "1"
	r.MerchantPrepareID = strconv.FormatInt(prepareID, 10)
	r.SignString = click.Sign(r, clickSecret)
	out = post("/payments/click/complete", r.Form())
	require.EqualValues(t, click.CodeSuccess, out["error"], out)
	assert.EqualValues(t, prepareID, out["merchant_confirm_id"])
	assert.True(t, h.env.Booking(t, b.ID).ProviderPaid)

	r.SignString = "deadbeef"
	out = post("/payments/click", r.Form())
	assert.EqualValues(t, click.CodeSignFailed, out["error"])
}

func TestPaymentRoutes_ThrottledCallsGetProviderEnvelopes(t *testing.T) {
	h := newHarnessWith(t, func(d *routes.Deps) { d.PaymentRate = "2-1m" })
	b := h.env.PayableBooking(t)

	send := func(path, contentType, body string, header http.Header) map[string]any {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		for k, v := range header {
			req.Header[k] = v
		}
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
		return out
	}

	auth := http.Header{"Authorization": {"Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:"+paymeKey))}}
	check := fmt.Sprintf(`{"jsonrpc":"2.0","id":%%d,"method":"CheckPerformTransaction","params":{"amount":10000,"account":{"booking_ref":%q}}}`, b.RequestRef)
	for id := 1; id <= 2; id++ {
		out := send("/payments/payme", "application/json", fmt.Sprintf(check, id), auth)
		assert.Nil(t, out["error"])
	}
	out := send("/payments/payme", "application/json", fmt.Sprintf(check, 3), auth)
	assert.Nil(t, out["result"])
	assert.EqualValues(t, 3, out["id"])
	assert.Equal(t, "2.0", out["jsonrpc"])
	rpcErr, ok := out["error"].(map[string]any)
	require.True(t, ok, out)
	assert.EqualValues(t, payme.CodeInternal, rpcErr["code"])

	r := click.Request{
		ClickTransID:    "777",
		ServiceID:       strconv.Itoa(clickService),
		MerchantTransID: b.RequestRef,
		Amount:          click.FormatAmount(b.FinalTotal),
		Action:          "0",
		Error:           "0",
		SignTime:        "2026-10-01 09:00:00",
	}
	r.SignString = click.Sign(r, clickSecret)
	form := "application/x-www-form-urlencoded"

	out = send("/payments/click/prepare", form, r.Form().Encode(), nil)
	require.EqualValues(t, click.CodeSuccess, out["error"], out)
	r.Action = "1"
	r.MerchantPrepareID = strconv.FormatInt(int64(out["merchant_prepare_id"].(float64)), 10)
	r.SignString = click.Sign(r, clickSecret)

	out = send("/payments/click", form, url.Values{"click_trans_id": {"1"}}.Encode(), nil)
	assert.EqualValues(t, click.CodeSignFailed, out["error"])

	out = send("/payments/click/complete", form, r.Form().Encode(), nil)
	assert.EqualValues(t, click.CodeFailedToUpdate, out["error"])
	assert.EqualValues(t, 777, out["click_trans_id"])
	assert.Equal(t, b.RequestRef, out["merchant_trans_id"])
	assert.NotEmpty(t, out["error_note"])
	assert.False(t, h.env.Booking(t, b.ID).ProviderPaid, "a throttled complete must not settle the booking")
}
