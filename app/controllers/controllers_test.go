package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReportFox/internal/pkg/database"
	"github.com/ManuelReschke/ReportFox/internal/pkg/identity"
	"github.com/ManuelReschke/ReportFox/internal/pkg/middleware"
)

const (
	tokenSecret   = "controller-secret"
	webhookSecret = "ls-secret"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type memoryProofStore struct {
	mu      sync.Mutex
	keys    map[string]string
	deleted int
}

func (s *memoryProofStore) Put(_ context.Context, key, contentType string, body io.Reader, _ int64) error {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]string)
	}
	s.keys[key] = contentType
	return nil
}

func (s *memoryProofStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	s.deleted++
	return nil
}

func (s *memoryProofStore) stored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *memoryProofStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://proofs.example.com/" + key, nil
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	proofs *memoryProofStore
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("LEMONSQUEEZY_WEBHOOK_SECRET", webhookSecret)

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	proofs := &memoryProofStore{}
	Configure(Dependencies{
		Billing: billing.NewServiceFromDB(db, billing.WithClock(func() time.Time { return testNow })),
		Reports: repository.NewReportRepository(db),
		Proofs:  proofs,
	})
	t.Cleanup(func() { Configure(Dependencies{}) })

	app := fiber.New()
	app.Post("/webhooks/lemonsqueezy", HandleLemonSqueezyWebhook)

	api := app.Group("/api/v1", middleware.IdentityMiddleware(identity.NewHMACVerifier(tokenSecret, "", ""), repository.NewUserRepository(db)))
	api.Get("/plans", HandleListPlans)
	api.Get("/subscription", middleware.RequireAuth, HandleGetSubscription)
	api.Put("/subscription/plan", middleware.RequireAuth, HandleChangePlan)
	api.Put("/subscription/cancel", middleware.RequireAuth, HandleCancelSubscription)
	api.Post("/payment-requests", middleware.RequireAuth, HandleSubmitPaymentRequest)
	api.Get("/payment-requests", middleware.RequireAuth, HandleListOwnPaymentRequests)
	api.Post("/reports", middleware.RequireAuth, HandleCreateReport)
	api.Get("/reports", middleware.RequireAuth, HandleListReports)

	admin := middleware.RequireAdmin
	api.Get("/admin/payment-requests", admin, HandleAdminListPaymentRequests)
	api.Put("/payment-requests/:id/approve", admin, HandleAdminApprovePaymentRequest)
	api.Put("/payment-requests/:id/reject", admin, HandleAdminRejectPaymentRequest)
	api.Get("/admin/subscriptions/:userId", admin, HandleAdminGetSubscription)
	api.Put("/admin/subscriptions/:userId/override", admin, HandleAdminOverride)
	api.Delete("/admin/subscriptions/:userId/override", admin, HandleAdminClearOverride)
	api.Put("/admin/subscriptions/:userId/status", admin, HandleAdminSetStatus)

	return &testEnv{app: app, db: db, proofs: proofs}
}

func token(t *testing.T, uid string) string {
	t.Helper()
	raw, err := identity.MintHS256(tokenSecret, identity.Identity{UID: uid, Email: uid + "@example.com"}, "", "", time.Hour)
	require.NoError(t, err)
	return "Bearer " + raw
}

// makeAdmin materializes the user through a request and promotes it.
func (e *testEnv) makeAdmin(t *testing.T, uid string) {
	t.Helper()
	e.call(t, uid, http.MethodGet, "/api/v1/subscription", nil)
	require.NoError(t, e.db.Model(&models.User{}).Where("external_uid = ?", uid).Update("role", models.ROLE_ADMIN).Error)
}

func (e *testEnv) userID(t *testing.T, uid string) uint {
	t.Helper()
	var u models.User
	require.NoError(t, e.db.Where("external_uid = ?", uid).First(&u).Error)
	return u.ID
}

func (e *testEnv) call(t *testing.T, uid, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if uid != "" {
		req.Header.Set(fiber.HeaderAuthorization, token(t, uid))
	}
	return e.do(t, req)
}

func (e *testEnv) do(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func field(t *testing.T, m map[string]interface{}, path ...string) interface{} {
	t.Helper()
	var cur interface{} = m
	for _, p := range path {
		obj, ok := cur.(map[string]interface{})
		require.True(t, ok, "expected object at %q", p)
		cur = obj[p]
	}
	return cur
}

func TestListPlans(t *testing.T) {
	e := setup(t)

	status, body := e.call(t, "", http.MethodGet, "/api/v1/plans", nil)
	require.Equal(t, fiber.StatusOK, status)
	plans, ok := body["plans"].([]interface{})
	require.True(t, ok)
	assert.Len(t, plans, 4)
}

func TestGetSubscriptionMaterializesTrial(t *testing.T) {
	e := setup(t)

	status, body := e.call(t, "new-user", http.MethodGet, "/api/v1/subscription", nil)
	require.Equal(t, fiber.StatusOK, status)

	assert.Equal(t, "free", field(t, body, "subscription", "plan"))
	assert.Equal(t, "trial", field(t, body, "subscription", "status"))
	assert.Equal(t, true, body["is_active"])
	assert.Equal(t, false, body["is_expired"])
	assert.Equal(t, testNow.Add(7*24*time.Hour).Format(time.RFC3339), field(t, body, "subscription", "trial_ends_at"))
	assert.EqualValues(t, 5, field(t, body, "quotas", "reports", "limit"))
}

func TestSubscriptionRequiresAuth(t *testing.T) {
	e := setup(t)

	status, body := e.call(t, "", http.MethodGet, "/api/v1/subscription", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestChangePlan(t *testing.T) {
	e := setup(t)

	status, body := e.call(t, "u1", http.MethodPut, "/api/v1/subscription/plan", fiber.Map{"plan": "pro"})
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	assert.Equal(t, "payment_required", body["error"])

	status, body = e.call(t, "u1", http.MethodPut, "/api/v1/subscription/plan", fiber.Map{"plan": "gold"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_plan", body["error"])

	status, body = e.call(t, "u1", http.MethodPut, "/api/v1/subscription/plan", fiber.Map{
		"plan":             "pro",
		"payment_provider": "paypal",
		"payment_id":       "PAY-1",
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "pro", field(t, body, "subscription", "plan"))
	assert.Equal(t, "active", field(t, body, "subscription", "status"))
	assert.Equal(t, testNow.Add(30*24*time.Hour).Format(time.RFC3339), field(t, body, "subscription", "current_period_end"))

	status, body = e.call(t, "u1", http.MethodPut, "/api/v1/subscription/cancel", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "cancelled", field(t, body, "subscription", "status"))
	assert.Equal(t, "pro", field(t, body, "subscription", "plan"))
	assert.Equal(t, true, body["is_active"])
}

func TestReselectingCurrentPlanKeepsUsage(t *testing.T) {
	e := setup(t)

	status, body := e.call(t, "writer", http.MethodPut, "/api/v1/subscription/plan", fiber.Map{"plan": "free"})
	require.Equal(t, fiber.StatusOK, status, body)
	for i := 0; i < 5; i++ {
		status, body := e.call(t, "writer", http.MethodPost, "/api/v1/reports", fiber.Map{"title": fmt.Sprintf("Report %d", i)})
		require.Equal(t, fiber.StatusCreated, status, body)
	}

	status, body = e.call(t, "writer", http.MethodPut, "/api/v1/subscription/plan", fiber.Map{"plan": "free"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 5, field(t, body, "quotas", "reports", "used"))

	status, body = e.call(t, "writer", http.MethodPost, "/api/v1/reports", fiber.Map{"title": "one too many"})
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "quota_exceeded", body["error"])

	change := fiber.Map{"plan": "pro", "payment_provider": "lemon_squeezy", "external_subscription_id": "ls-sub-1"}
	status, body = e.call(t, "writer", http.MethodPut, "/api/v1/subscription/plan", change)
	require.Equal(t, fiber.StatusOK, status, body)
	periodEnd := field(t, body, "subscription", "current_period_end")

	status, _ = e.call(t, "writer", http.MethodPost, "/api/v1/reports", fiber.Map{"title": "pro report"})
	require.Equal(t, fiber.StatusCreated, status)

	status, body = e.call(t, "writer", http.MethodPut, "/api/v1/subscription/plan", change)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 1, field(t, body, "quotas", "reports", "used"))
	assert.Equal(t, periodEnd, field(t, body, "subscription", "current_period_end"))
}

func TestCancelFromTrialConflicts(t *testing.T) {
	e := setup(t)

	status, body := e.call(t, "u1", http.MethodPut, "/api/v1/subscription/cancel", nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "invalid_transition", body["error"])
}

func TestCreateReportEnforcesQuota(t *testing.T) {
	e := setup(t)

	for i := 0; i < 5; i++ {
		status, body := e.call(t, "writer", http.MethodPost, "/api/v1/reports", fiber.Map{"title": fmt.Sprintf("Report %d", i)})
		require.Equal(t, fiber.StatusCreated, status, body)
	}

	status, body := e.call(t, "writer", http.MethodPost, "/api/v1/reports", fiber.Map{"title": "one too many"})
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "quota_exceeded", body["error"])
	assert.EqualValues(t, 5, body["used"])
	assert.EqualValues(t, 5, body["limit"])

	status, body = e.call(t, "writer", http.MethodGet, "/api/v1/reports", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 5, body["total"])
}

func TestCreateReportValidatesTitle(t *testing.T) {
	e := setup(t)

	status, body := e.call(t, "writer", http.MethodPost, "/api/v1/reports", fiber.Map{"title": "  "})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation_failed", body["error"])

	_, sub := e.call(t, "writer", http.MethodGet, "/api/v1/subscription", nil)
	assert.EqualValues(t, 0, field(t, sub, "quotas", "reports", "used"))
}

func TestPaymentRequestApprovalFlow(t *testing.T) {
	e := setup(t)
	e.makeAdmin(t, "admin")

	status, body := e.call(t, "buyer", http.MethodPost, "/api/v1/payment-requests", fiber.Map{
		"plan":           "business",
		"amount_cents":   4900,
		"method":         "bank_transfer",
		"transaction_id": "TX-77",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	id := uint(field(t, body, "payment_request", "id").(float64))

	status, body = e.call(t, "buyer", http.MethodPost, "/api/v1/payment-requests", fiber.Map{
		"plan": "business", "amount_cents": 4900, "method": "bank_transfer",
	})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "pending_request_exists", body["error"])

	status, _ = e.call(t, "buyer", http.MethodPut, fmt.Sprintf("/api/v1/payment-requests/%d/approve", id), nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = e.call(t, "admin", http.MethodGet, "/api/v1/admin/payment-requests?status=pending", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["payment_requests"], 1)

	status, body = e.call(t, "admin", http.MethodPut, fmt.Sprintf("/api/v1/payment-requests/%d/approve", id), nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "approved", field(t, body, "payment_request", "status"))
	assert.NotNil(t, field(t, body, "payment_request", "decided_at"))
	assert.Equal(t, "business", field(t, body, "subscription", "plan"))
	assert.Equal(t, "active", field(t, body, "subscription", "status"))

	status, body = e.call(t, "admin", http.MethodPut, fmt.Sprintf("/api/v1/payment-requests/%d/approve", id), nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "invalid_transition", body["error"])

	status, body = e.call(t, "buyer", http.MethodGet, "/api/v1/payment-requests", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["payment_requests"], 1)
}

func TestPaymentRequestRejectionKeepsSubscription(t *testing.T) {
	e := setup(t)
	e.makeAdmin(t, "admin")

	status, _ := e.call(t, "buyer", http.MethodPut, "/api/v1/subscription/plan", fiber.Map{
		"plan": "pro", "payment_provider": "paypal", "payment_id": "PAY-9",
	})
	require.Equal(t, fiber.StatusOK, status)

	status, body := e.call(t, "buyer", http.MethodPost, "/api/v1/payment-requests", fiber.Map{
		"plan": "enterprise", "amount_cents": 19900, "method": "wire",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	id := uint(field(t, body, "payment_request", "id").(float64))

	status, body = e.call(t, "admin", http.MethodPut, fmt.Sprintf("/api/v1/payment-requests/%d/reject", id), fiber.Map{"reason": "no funds received"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "rejected", field(t, body, "payment_request", "status"))
	assert.Equal(t, "no funds received", field(t, body, "payment_request", "rejection_reason"))

	_, sub := e.call(t, "buyer", http.MethodGet, "/api/v1/subscription", nil)
	assert.Equal(t, "pro", field(t, sub, "subscription", "plan"))
	assert.Equal(t, "active", field(t, sub, "subscription", "status"))
}

func TestPaymentRequestRejectsLowAmount(t *testing.T) {
	e := setup(t)

	status, body := e.call(t, "buyer", http.MethodPost, "/api/v1/payment-requests", fiber.Map{
		"plan": "pro", "amount_cents": 100, "method": "wire",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_amount", body["error"])
}

// proofUpload builds a multipart payment request carrying a PNG proof.
func proofUpload(t *testing.T, uid string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="proof"; filename="receipt.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-requests", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	req.Header.Set(fiber.HeaderAuthorization, token(t, uid))
	return req
}

func TestPaymentRequestWithProofUpload(t *testing.T) {
	e := setup(t)

	status, body := e.do(t, proofUpload(t, "uploader", map[string]string{
		"plan": "pro", "amount_cents": "1900", "method": "bank_transfer",
	}))
	require.Equal(t, fiber.StatusCreated, status, body)

	ref, _ := field(t, body, "payment_request", "proof_ref").(string)
	assert.Regexp(t, fmt.Sprintf(`^payment-proofs/2026/04/%d/[0-9a-f-]{36}\.png$`, e.userID(t, "uploader")), ref)
	assert.Equal(t, "image/png", e.proofs.keys[ref])
}

func TestRejectedPaymentRequestLeavesNoProof(t *testing.T) {
	e := setup(t)

	status, body := e.do(t, proofUpload(t, "uploader", map[string]string{
		"plan": "pro", "amount_cents": "100", "method": "bank_transfer",
	}))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_amount", body["error"])

	status, body = e.do(t, proofUpload(t, "uploader", map[string]string{"plan": "free", "amount_cents": "1900"}))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_plan", body["error"])
	assert.Zero(t, e.proofs.stored())

	status, body = e.do(t, proofUpload(t, "uploader", map[string]string{"plan": "pro", "amount_cents": "1900"}))
	assert.Equal(t, fiber.StatusBadRequest, status, "method is required")
	assert.Equal(t, "validation_failed", body["error"])
	assert.Zero(t, e.proofs.stored())
	assert.Equal(t, 1, e.proofs.deleted, "proof stored before the failed insert is removed")

	status, body = e.do(t, proofUpload(t, "uploader", map[string]string{
		"plan": "pro", "amount_cents": "1900", "method": "bank_transfer",
	}))
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = e.do(t, proofUpload(t, "uploader", map[string]string{
		"plan": "business", "amount_cents": "4900", "method": "bank_transfer",
	}))
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "pending_request_exists", body["error"])
	assert.Equal(t, 1, e.proofs.stored())
}

func TestAdminOverrideAndStatus(t *testing.T) {
	e := setup(t)
	e.makeAdmin(t, "admin")
	e.call(t, "member", http.MethodGet, "/api/v1/subscription", nil)
	memberID := e.userID(t, "member")
	base := fmt.Sprintf("/api/v1/admin/subscriptions/%d", memberID)

	status, body := e.call(t, "admin", http.MethodPut, base+"/override", fiber.Map{"plan": "business"})
	assert.Equal(t, fiber.StatusBadRequest, status, "reason is mandatory")
	assert.Equal(t, "validation_failed", body["error"])

	status, body = e.call(t, "admin", http.MethodPut, base+"/override", fiber.Map{
		"features": fiber.Map{"reports_per_month": 500, "team_members": 2, "api_access": true},
		"reason":   "pilot customer",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, field(t, body, "subscription", "features_overridden"))
	assert.EqualValues(t, 500, field(t, body, "quotas", "reports", "limit"))

	status, body = e.call(t, "admin", http.MethodGet, base, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["overrides"], 1)

	status, body = e.call(t, "admin", http.MethodDelete, base+"/override?reason=pilot+ended", nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, false, field(t, body, "subscription", "features_overridden"))
	assert.EqualValues(t, 5, field(t, body, "quotas", "reports", "limit"))

	status, body = e.call(t, "admin", http.MethodPut, base+"/status", fiber.Map{"status": "inactive", "reason": "chargeback"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "inactive", field(t, body, "subscription", "status"))
	assert.Equal(t, false, body["is_active"])

	status, _ = e.call(t, "member", http.MethodPost, "/api/v1/reports", fiber.Map{"title": "blocked"})
	assert.Equal(t, fiber.StatusTooManyRequests, status)
}

func signedLemonSqueezy(t *testing.T, payload string) *http.Request {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(payload))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/lemonsqueezy", bytes.NewBufferString(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(billing.LemonSqueezySignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestLemonSqueezyWebhook(t *testing.T) {
	e := setup(t)
	e.call(t, "subscriber", http.MethodGet, "/api/v1/subscription", nil)
	userID := e.userID(t, "subscriber")

	payload := fmt.Sprintf(`{"meta":{"event_name":"subscription_created","custom_data":{"user_id":"%d"}},"data":{"type":"subscriptions","id":"ls-900","attributes":{"status":"active","variant_id":1,"product_name":"ReportFox","variant_name":"Pro"}}}`, userID)

	forged := signedLemonSqueezy(t, payload)
	forged.Header.Set(billing.LemonSqueezySignatureHeader, "deadbeef")
	status, body := e.do(t, forged)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid_signature", body["error"])

	status, body = e.do(t, signedLemonSqueezy(t, payload))
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["applied"])
	assert.Equal(t, false, body["duplicate"])

	status, body = e.do(t, signedLemonSqueezy(t, payload))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	_, sub := e.call(t, "subscriber", http.MethodGet, "/api/v1/subscription", nil)
	assert.Equal(t, "pro", field(t, sub, "subscription", "plan"))
	assert.Equal(t, "lemon_squeezy", field(t, sub, "subscription", "payment_provider"))
	assert.Equal(t, "ls-900", field(t, sub, "subscription", "external_subscription_id"))
}

func TestLemonSqueezyWebhookBadPayload(t *testing.T) {
	e := setup(t)

	status, body := e.do(t, signedLemonSqueezy(t, `{"meta":{}}`))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_payload", body["error"])
}

func TestLemonSqueezyWebhookUnknownSubscription(t *testing.T) {
	e := setup(t)

	status, body := e.do(t, signedLemonSqueezy(t, `{"meta":{"event_name":"subscription_cancelled"},"data":{"id":"ls-missing","attributes":{"status":"cancelled"}}}`))
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "subscription_not_found", body["error"])
}
