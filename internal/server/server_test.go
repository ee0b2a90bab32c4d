package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/otp-relay/internal/account"
	"github.com/nhle/otp-relay/internal/model"
)

type fakeRetriever struct {
	mu       sync.Mutex
	requests []model.Request
	result   model.Outcome
	panicMsg string
}

func (f *fakeRetriever) Retrieve(_ context.Context, req model.Request) model.Outcome {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result
}

func (f *fakeRetriever) calls() []model.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Request(nil), f.requests...)
}

func newTestApp(t *testing.T, retriever *fakeRetriever) *fiber.App {
	t.Helper()

	registry := account.NewRegistry([]model.Account{
		{ID: "a1", Username: "one@example.com", Password: "p", Email: "one@example.com", Active: true},
		{ID: "a2", Username: "two@example.com", Password: "", Email: "two@example.com", Active: true},
	})
	return New(retriever, registry)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded), string(body))
	return resp.StatusCode, decoded
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/otp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, &fakeRetriever{})

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "Email OTP Retrieval API (IMAP)", body["message"])
	assert.Equal(t, Version, body["version"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestListAccounts_HidesCredentials(t *testing.T) {
	app := newTestApp(t, &fakeRetriever{})

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/accounts", nil))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["count"])

	accounts := body["accounts"].([]any)
	require.Len(t, accounts, 1)
	first := accounts[0].(map[string]any)
	assert.Equal(t, "a1", first["id"])
	assert.Equal(t, "one@example.com", first["email"])
	assert.Equal(t, true, first["isActive"])
	assert.NotContains(t, first, "password")
}

func TestListAccounts_OmitsInactive(t *testing.T) {
	registry := account.NewRegistry([]model.Account{
		{ID: "off", Username: "off@example.com", Password: "p", Email: "off@example.com", Active: false},
		{ID: "on", Username: "on@example.com", Password: "p", Email: "on@example.com", Active: true},
	})
	app := New(&fakeRetriever{}, registry)

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/accounts", nil))

	assert.Equal(t, http.StatusOK, status)
	accounts := body["accounts"].([]any)
	require.Len(t, accounts, 1)
	assert.Equal(t, "on", accounts[0].(map[string]any)["id"])
	assert.Equal(t, true, accounts[0].(map[string]any)["isActive"])
}

func TestPostOTP_Success(t *testing.T) {
	retriever := &fakeRetriever{result: model.Outcome{
		Success: true, OTP: "123456", AccountID: "a1", Email: "one@example.com",
	}}
	app := newTestApp(t, retriever)

	status, body := do(t, app, postJSON(`{"referenceCode":"ABC12","accountIds":["a1"],"timeout":5000}`))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "123456", body["otp"])
	assert.Equal(t, "a1", body["accountId"])

	calls := retriever.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, model.Request{
		ReferenceCode: "ABC12",
		AccountIDs:    []string{"a1"},
		TimeoutMillis: 5000,
	}, calls[0])
}

func TestPostOTP_FailureIs404(t *testing.T) {
	retriever := &fakeRetriever{result: model.Failure(model.MsgNoActiveAccounts)}
	app := newTestApp(t, retriever)

	status, body := do(t, app, postJSON(`{"referenceCode":"ABC12"}`))

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, model.MsgNoActiveAccounts, body["error"])
}

func TestPostOTP_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"referenceCode":`, msgInvalidRequest},
		{"empty body", ``, msgInvalidRequest},
		{"wrong field type", `{"referenceCode":12345}`, msgInvalidRequest},
		{"missing code", `{}`, msgReferenceRequired},
		{"too short", `{"referenceCode":"AB"}`, model.MsgInvalidReferenceCode},
		{"too long", `{"referenceCode":"ABCDEF"}`, model.MsgInvalidReferenceCode},
		{"symbols", `{"referenceCode":"AB-12"}`, msgReferenceCharset},
		{"negative timeout", `{"referenceCode":"ABC12","timeout":-1}`, msgInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := &fakeRetriever{}
			app := newTestApp(t, retriever)

			status, body := do(t, app, postJSON(tt.body))

			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.want, body["error"])
			assert.NotEmpty(t, body["timestamp"])
			assert.Empty(t, retriever.calls())
		})
	}
}

func TestGetOTP_ParsesQuery(t *testing.T) {
	retriever := &fakeRetriever{result: model.Outcome{Success: true, OTP: "4321"}}
	app := newTestApp(t, retriever)

	req := httptest.NewRequest(http.MethodGet, "/otp/XY9Z1?accounts=a1,%20a2,&timeout=1500", nil)
	status, body := do(t, app, req)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "4321", body["otp"])

	calls := retriever.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "XY9Z1", calls[0].ReferenceCode)
	assert.Equal(t, []string{"a1", "a2"}, calls[0].AccountIDs)
	assert.Equal(t, 1500, calls[0].TimeoutMillis)
}

func TestGetOTP_Validation(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/otp/AB", model.MsgInvalidReferenceCode},
		{"/otp/AB_12", msgReferenceCharset},
		{"/otp/ABC12?timeout=soon", msgInvalidTimeout},
		{"/otp/ABC12?timeout=0", msgInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			retriever := &fakeRetriever{}
			app := newTestApp(t, retriever)

			status, body := do(t, app, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.want, body["error"])
			assert.Empty(t, retriever.calls())
		})
	}
}

func TestPanicBecomesInternalError(t *testing.T) {
	app := newTestApp(t, &fakeRetriever{panicMsg: "boom"})

	status, body := do(t, app, postJSON(`{"referenceCode":"ABC12"}`))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, msgInternal, body["error"])
	assert.Equal(t, false, body["success"])
}

func TestUnknownRoute(t *testing.T) {
	app := newTestApp(t, &fakeRetriever{})

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestResponsesCarryRequestIDAndCORS(t *testing.T) {
	app := newTestApp(t, &fakeRetriever{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
	assert.Equal(t, "*", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}

func TestGetOTP_RequestValuesOutliveHandler(t *testing.T) {
	retriever := &fakeRetriever{result: model.Outcome{Success: false, Error: "not found"}}
	app := newTestApp(t, retriever)

	status, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/otp/AAAAA?accounts=a1,a2&timeout=50", nil))
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/otp/ZZZZZ?accounts=zz,yy", nil))
	assert.Equal(t, http.StatusNotFound, status)

	calls := retriever.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "AAAAA", calls[0].ReferenceCode)
	assert.Equal(t, []string{"a1", "a2"}, calls[0].AccountIDs)
	assert.Equal(t, "ZZZZZ", calls[1].ReferenceCode)
	assert.Equal(t, []string{"zz", "yy"}, calls[1].AccountIDs)
}
