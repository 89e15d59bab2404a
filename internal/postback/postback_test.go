package postback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deposit struct {
	id      int64
	amount  decimal.NullDecimal
	country string
}

type fakeHandler struct {
	registrations []int64
	deposits      []deposit
	err           error
}

func (h *fakeHandler) ConfirmRegistration(_ context.Context, id int64) error {
	h.registrations = append(h.registrations, id)
	return h.err
}

func (h *fakeHandler) ConfirmDeposit(_ context.Context, id int64, amount decimal.NullDecimal, country string) error {
	h.deposits = append(h.deposits, deposit{id: id, amount: amount, country: country})
	return h.err
}

func init() { gin.SetMode(gin.TestMode) }

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := serve(NewRouter(&fakeHandler{}, "s"), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegistrationPostback(t *testing.T) {
	h := &fakeHandler{}
	r := NewRouter(h, "s3cret")

	w := serve(r, httptest.NewRequest(http.MethodGet, "/postback/registration?sub1=42&secret=s3cret", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{42}, h.registrations)
}

func TestDepositPostbackForm(t *testing.T) {
	h := &fakeHandler{}
	r := NewRouter(h, "s3cret")

	form := url.Values{"user_id": {"7"}, "amount": {"99.90"}, "country": {"in"}}
	req := httptest.NewRequest(http.MethodPost, "/postback/deposit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(SecretHeader, "s3cret")

	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, h.deposits, 1)
	got := h.deposits[0]
	assert.EqualValues(t, 7, got.id)
	assert.Equal(t, "IN", got.country)
	require.True(t, got.amount.Valid)
	assert.True(t, decimal.RequireFromString("99.9").Equal(got.amount.Decimal))
}

func TestRejectsBadSecret(t *testing.T) {
	h := &fakeHandler{}
	w := serve(NewRouter(h, "s3cret"), httptest.NewRequest(http.MethodGet, "/postback/registration?user_id=1&secret=nope", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, h.registrations)
}

func TestRejectsBadInput(t *testing.T) {
	h := &fakeHandler{}
	r := NewRouter(h, "")

	w := serve(r, httptest.NewRequest(http.MethodGet, "/postback/registration?user_id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/postback/deposit?user_id=5&amount=lots", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, h.deposits)
}

func TestHandlerErrorIs500(t *testing.T) {
	h := &fakeHandler{err: errors.New("store down")}
	w := serve(NewRouter(h, ""), httptest.NewRequest(http.MethodGet, "/postback/registration?user_id=5", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServerLifecycle(t *testing.T) {
	s := NewServer("127.0.0.1:0", &fakeHandler{}, "")
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
}
