package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/apperr"
	"github.com/likefeed/backend/internal/auth"
	"github.com/likefeed/backend/internal/config"
	"github.com/likefeed/backend/internal/gateway"
	"github.com/likefeed/backend/internal/http/handlers"
	"github.com/likefeed/backend/internal/metrics"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/rbac"
	"github.com/likefeed/backend/internal/repositories"
	"github.com/likefeed/backend/internal/secret"
	"github.com/likefeed/backend/internal/services"
)

type stubBackend struct {
	likeErr      error
	reconciling  bool
	postErr      error
	lastLike     services.LikeRequest
	lastTransfer services.TransferRequest
	rotated      bool
}

func (s *stubBackend) WritePost(_ context.Context, req services.WritePostRequest) (*models.Post, error) {
	if s.postErr != nil {
		return nil, s.postErr
	}
	return &models.Post{ID: 1, AuthorAddress: req.AuthorAddress, Body: req.Body}, nil
}

func (s *stubBackend) WriteComment(_ context.Context, req services.WriteCommentRequest) (*models.Comment, error) {
	return &models.Comment{ID: 2, PostID: req.PostID, Body: req.Body}, nil
}

func (s *stubBackend) ListPosts(_ context.Context, limit, offset int) ([]models.Post, error) {
	return []models.Post{{ID: 1}}, nil
}

func (s *stubBackend) ListComments(_ context.Context, postID *int64, limit, offset int) ([]models.Comment, error) {
	return []models.Comment{}, nil
}

func (s *stubBackend) List(_ context.Context, limit int) (*models.ContentListing, error) {
	return &models.ContentListing{}, nil
}

func (s *stubBackend) Register(_ context.Context, address string, _ secret.SigningKey) (*services.RegisterWalletResult, error) {
	return &services.RegisterWalletResult{Address: address, Rotated: s.rotated}, nil
}

func (s *stubBackend) RegisterWallet(_ context.Context, address, signingKeyHex string) (*services.RegisterWalletResult, error) {
	if signingKeyHex == "" {
		return nil, apperr.New(apperr.KindInvalidCredential, "signing key is malformed")
	}
	return &services.RegisterWalletResult{Address: address, Rotated: s.rotated}, nil
}

func (s *stubBackend) IncrementLike(_ context.Context, req services.LikeRequest) (*services.LikeResult, error) {
	s.lastLike = req
	if s.likeErr != nil {
		return nil, s.likeErr
	}
	count := int64(6)
	res := &services.LikeResult{TxHash: "0xfeed", Amount: "1", Reconciling: s.reconciling}
	if !s.reconciling {
		res.LikeCount = &count
	}
	return res, nil
}

func (s *stubBackend) Transfer(_ context.Context, req services.TransferRequest) (*services.TransferResult, error) {
	s.lastTransfer = req
	return &services.TransferResult{TxHash: "0xbeef", To: req.ToAddress, Amount: req.Amount}, nil
}

var knownAttempt = uuid.MustParse("7d1f0c1e-3a55-4c61-9b0e-2f7f3c1b9a10")

func (s *stubBackend) GetByID(_ context.Context, id uuid.UUID) (*models.RewardAttempt, error) {
	if id != knownAttempt {
		return nil, repositories.ErrNotFound
	}
	return &models.RewardAttempt{ID: id, Status: models.AttemptStatusSubmitted}, nil
}

func (s *stubBackend) GetByEntity(_ context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	return []models.AuditLog{{Action: "wallet_registered", EntityType: entityType, EntityID: entityID}}, nil
}

func newTestApp(t *testing.T, cfg *config.Config, backend *stubBackend) *fiber.App {
	t.Helper()
	log := zap.NewNop()
	app := fiber.New()
	SetupRouter(app, cfg, log, nil, metrics.New(),
		handlers.NewRPCHandler(gateway.NewExecutor(backend, backend, backend, log), log),
		handlers.NewContentHandler(backend, log),
		handlers.NewLikeHandler(backend, log),
		handlers.NewWalletHandler(backend, log),
		handlers.NewRewardHandler(backend, backend, log),
		handlers.NewWSHub(cfg, nil, log),
	)
	return app
}

type response struct {
	status int
	body   map[string]any
	raw    string
	header func(string) string
}

func call(t *testing.T, app *fiber.App, method, path, body, token string) response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := response{status: resp.StatusCode, raw: string(raw), header: resp.Header.Get}
	_ = json.Unmarshal(raw, &out.body)
	return out
}

func openConfig() *config.Config {
	return &config.Config{RateLimitPerMinute: 0}
}

func TestCreatePost(t *testing.T) {
	app := newTestApp(t, openConfig(), &stubBackend{})

	res := call(t, app, "POST", "/api/v1/posts", `{"author_address":"0xabc","body":"gm"}`, "")
	assert.Equal(t, fiber.StatusCreated, res.status)
	assert.Equal(t, true, res.body["ok"])
	assert.NotEmpty(t, res.header("X-Request-ID"))
}

func TestLikeStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		backend    *stubBackend
		wantStatus int
		wantKind   string
	}{
		{"settled", &stubBackend{}, fiber.StatusOK, ""},
		{"reconciling", &stubBackend{reconciling: true}, fiber.StatusAccepted, ""},
		{"no wallet", &stubBackend{likeErr: apperr.New(apperr.KindWalletNotFound, "no wallet")}, fiber.StatusNotFound, "wallet_not_found"},
		{"no content", &stubBackend{likeErr: apperr.New(apperr.KindContentNotFound, "no post")}, fiber.StatusNotFound, "content_not_found"},
		{"funds", &stubBackend{likeErr: apperr.New(apperr.KindInsufficientFunds, "broke")}, fiber.StatusPaymentRequired, "insufficient_funds"},
		{"duplicate", &stubBackend{likeErr: apperr.New(apperr.KindDuplicateRequest, "seen")}, fiber.StatusConflict, "duplicate_request"},
		{"rejected", &stubBackend{likeErr: apperr.New(apperr.KindTransactionFailed, "nonce too low")}, fiber.StatusBadGateway, "transaction_failed"},
		{"node down", &stubBackend{likeErr: apperr.New(apperr.KindNetworkUnavailable, "dial tcp")}, fiber.StatusServiceUnavailable, "network_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, openConfig(), tt.backend)
			res := call(t, app, "POST", "/api/v1/likes", `{"content_type":"POST","content_id":42,"actor_address":"0xabc"}`, "")
			assert.Equal(t, tt.wantStatus, res.status)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, res.body["kind"])
			}
		})
	}
}

func TestLikeIdempotencyHeader(t *testing.T) {
	backend := &stubBackend{}
	app := newTestApp(t, openConfig(), backend)

	req := httptest.NewRequest("POST", "/api/v1/likes", strings.NewReader(`{"content_type":"post","content_id":1,"actor_address":"0xabc"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "abc-1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-1", backend.lastLike.IdempotencyKey)
	assert.Equal(t, models.ContentPost, backend.lastLike.ContentType)
}

func TestNumericAmountOnEveryPath(t *testing.T) {
	cfg := &config.Config{APITokenSecret: "test-secret"}
	backend := &stubBackend{}
	app := newTestApp(t, cfg, backend)
	operator, err := auth.GenerateAPIToken(cfg.APITokenSecret, "ops", rbac.RoleOperator, time.Hour)
	require.NoError(t, err)

	res := call(t, app, "POST", "/api/v1/likes", `{"content_type":"post","content_id":1,"actor_address":"0xabc","amount":3}`, operator)
	assert.Equal(t, fiber.StatusOK, res.status, res.raw)
	assert.Equal(t, "3", backend.lastLike.Amount)

	res = call(t, app, "POST", "/api/v1/rpc", `{"function":"increment_like","arguments":{"content_type":"post","content_id":1,"actor_address":"0xabc","amount":3}}`, operator)
	assert.Equal(t, fiber.StatusOK, res.status, res.raw)
	assert.Equal(t, "3", backend.lastLike.Amount)

	res = call(t, app, "POST", "/api/v1/transfers", `{"to_address":"0xabc","amount":2.5}`, operator)
	assert.Equal(t, fiber.StatusOK, res.status, res.raw)
	assert.Equal(t, "2.5", backend.lastTransfer.Amount)

	res = call(t, app, "POST", "/api/v1/likes", `{"content_type":"post","content_id":1,"actor_address":"0xabc","amount":true}`, operator)
	assert.Equal(t, fiber.StatusBadRequest, res.status)
}

func TestOutcomeUnknownFlag(t *testing.T) {
	backend := &stubBackend{likeErr: apperr.Unknown(context.DeadlineExceeded, "broadcast did not complete")}
	app := newTestApp(t, openConfig(), backend)

	res := call(t, app, "POST", "/api/v1/likes", `{"content_type":"post","content_id":1,"actor_address":"0xabc"}`, "")
	assert.Equal(t, fiber.StatusBadGateway, res.status)
	assert.Equal(t, true, res.body["outcome_unknown"])
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	backend := &stubBackend{postErr: fmt.Errorf("pq: relation posts does not exist")}
	app := newTestApp(t, openConfig(), backend)

	res := call(t, app, "POST", "/api/v1/posts", `{"author_address":"0xabc","body":"gm"}`, "")
	assert.Equal(t, fiber.StatusInternalServerError, res.status)
	assert.Equal(t, "internal error", res.body["error"])
	assert.NotContains(t, res.raw, "relation")
	assert.NotEmpty(t, res.body["request_id"])
}

func TestRPCEnvelope(t *testing.T) {
	app := newTestApp(t, openConfig(), &stubBackend{})

	res := call(t, app, "POST", "/api/v1/rpc", `{"function":"increment_like","arguments":{"content_type":"post","content_id":1,"from_wallet":"0xabc","amount":1}}`, "")
	assert.Equal(t, fiber.StatusOK, res.status)
	data := res.body["data"].(map[string]any)
	assert.Equal(t, "0xfeed", data["tx_hash"])

	res = call(t, app, "POST", "/llm/execute", `{"function":"create_post","arguments":{"agent_public_key":"0xabc","content":"gm"}}`, "")
	assert.Equal(t, fiber.StatusOK, res.status)

	res = call(t, app, "POST", "/api/v1/rpc", `{"function":"rm_rf","arguments":{}}`, "")
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "unrecognized_operation", res.body["kind"])

	res = call(t, app, "POST", "/api/v1/rpc", `{"function":`, "")
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "invalid_argument", res.body["kind"])
}

func TestTokenAuthAndRoles(t *testing.T) {
	cfg := &config.Config{APITokenSecret: "test-secret"}
	app := newTestApp(t, cfg, &stubBackend{})

	agent, err := auth.GenerateAPIToken(cfg.APITokenSecret, "agent-1", rbac.RoleAgent, time.Hour)
	require.NoError(t, err)
	operator, err := auth.GenerateAPIToken(cfg.APITokenSecret, "ops", rbac.RoleOperator, time.Hour)
	require.NoError(t, err)

	transfer := `{"to_address":"0xabc","amount":"1"}`

	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, "POST", "/api/v1/transfers", transfer, "").status)
	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, "POST", "/api/v1/transfers", transfer, "forged").status)
	assert.Equal(t, fiber.StatusForbidden, call(t, app, "POST", "/api/v1/transfers", transfer, agent).status)
	assert.Equal(t, fiber.StatusOK, call(t, app, "POST", "/api/v1/transfers", transfer, operator).status)

	rpc := `{"function":"transfer_token","arguments":{"to_address":"0xabc","amount":"1"}}`
	res := call(t, app, "POST", "/api/v1/rpc", rpc, agent)
	assert.Equal(t, fiber.StatusForbidden, res.status)
	assert.Equal(t, "forbidden", res.body["kind"])
	assert.Equal(t, fiber.StatusOK, call(t, app, "POST", "/api/v1/rpc", rpc, operator).status)

	assert.Equal(t, fiber.StatusOK, call(t, app, "GET", "/health", "", "").status)
}

func TestAnonymousCallerCannotTransfer(t *testing.T) {
	app := newTestApp(t, openConfig(), &stubBackend{})
	res := call(t, app, "POST", "/api/v1/transfers", `{"to_address":"0xabc","amount":"1"}`, "")
	assert.Equal(t, fiber.StatusForbidden, res.status)
}

func TestRegisterWalletStatus(t *testing.T) {
	backend := &stubBackend{}
	app := newTestApp(t, openConfig(), backend)

	res := call(t, app, "PUT", "/api/v1/wallets", `{"address":"0xabc","signing_key":"aa"}`, "")
	assert.Equal(t, fiber.StatusCreated, res.status)

	backend.rotated = true
	res = call(t, app, "PUT", "/api/v1/wallets", `{"address":"0xabc","signing_key":"aa"}`, "")
	assert.Equal(t, fiber.StatusOK, res.status)

	res = call(t, app, "PUT", "/api/v1/wallets", `{"address":"0xabc"}`, "")
	assert.Equal(t, fiber.StatusUnprocessableEntity, res.status)
}

func TestListEndpoints(t *testing.T) {
	app := newTestApp(t, openConfig(), &stubBackend{})

	res := call(t, app, "GET", "/api/v1/posts?limit=100000", "", "")
	assert.Equal(t, fiber.StatusOK, res.status)
	data := res.body["data"].(map[string]any)
	assert.EqualValues(t, services.MaxListLimit, data["limit"])

	assert.Equal(t, fiber.StatusOK, call(t, app, "GET", "/api/v1/comments?post_id=3", "", "").status)
	assert.Equal(t, fiber.StatusBadRequest, call(t, app, "GET", "/api/v1/comments?post_id=x", "", "").status)
	assert.Equal(t, fiber.StatusOK, call(t, app, "GET", "/api/v1/content", "", "").status)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, openConfig(), &stubBackend{})
	call(t, app, "GET", "/health", "", "")

	res := call(t, app, "GET", "/metrics", "", "")
	assert.Equal(t, fiber.StatusOK, res.status)
	assert.Contains(t, res.raw, "# TYPE")
}

func TestRewardAttemptLookup(t *testing.T) {
	app := newTestApp(t, openConfig(), &stubBackend{})

	res := call(t, app, "GET", "/api/v1/rewards/"+knownAttempt.String(), "", "")
	assert.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, models.AttemptStatusSubmitted, res.body["data"].(map[string]any)["status"])

	assert.Equal(t, fiber.StatusNotFound, call(t, app, "GET", "/api/v1/rewards/"+uuid.NewString(), "", "").status)
	assert.Equal(t, fiber.StatusBadRequest, call(t, app, "GET", "/api/v1/rewards/42", "", "").status)
}

func TestAuditNeedsOperator(t *testing.T) {
	cfg := &config.Config{APITokenSecret: "test-secret"}
	app := newTestApp(t, cfg, &stubBackend{})

	agent, err := auth.GenerateAPIToken(cfg.APITokenSecret, "agent-1", rbac.RoleAgent, time.Hour)
	require.NoError(t, err)
	operator, err := auth.GenerateAPIToken(cfg.APITokenSecret, "ops", rbac.RoleOperator, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusForbidden, call(t, app, "GET", "/api/v1/audit/wallet/0xabc", "", agent).status)
	res := call(t, app, "GET", "/api/v1/audit/wallet/0xabc", "", operator)
	assert.Equal(t, fiber.StatusOK, res.status)
	assert.Len(t, res.body["data"], 1)
}
