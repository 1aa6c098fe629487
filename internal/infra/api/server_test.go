//go:build !integration

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/usecase"
)

const generateBody = `{"industry":"construction-trades","pack":"lite","documents":["whs-policy"],"format":"pdf","businessInfo":{"businessName":"Acme Builders"}}`

func decodeBody(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestServer_PublicRoutes(t *testing.T) {
	t.Run("should serve the catalog without a token", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodGet, "/api/v1/catalog", "", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec.Body.Bytes())
		assert.NotEmpty(t, body["industries"])
		assert.Contains(t, body, "stats")
	})

	t.Run("should report liveness and readiness", func(t *testing.T) {
		f := newAPIFixture(t)

		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "", "").Code)
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ready", "", "").Code)
	})

	t.Run("should fail readiness naming the broken dependency", func(t *testing.T) {
		f := newAPIFixture(t)
		f.probes["redis"] = fakePinger{err: errors.New("connection refused")}

		rec := f.do(t, http.MethodGet, "/ready", "", "")

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "redis", decodeBody(t, rec.Body.Bytes())["dependency"])
	})

	t.Run("should reject protected routes without a token", func(t *testing.T) {
		f := newAPIFixture(t)

		for _, path := range []string{"/api/v1/entitlements/status", "/api/v1/documents", "/api/v1/activity"} {
			rec := f.do(t, http.MethodGet, path, "", "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		}
	})
}

func TestServer_Generate(t *testing.T) {
	doc := &model.Document{ID: "doc-1", UserID: "user-1", DocumentType: "whs-policy", Format: model.FormatPDF}

	t.Run("should return 200 and stamp the caller as the owner", func(t *testing.T) {
		// --- Arrange ---
		f := newAPIFixture(t)
		f.gen.GenerateFunc = func(_ context.Context, req usecase.GenerateRequest) (*usecase.GenerateResult, error) {
			return &usecase.GenerateResult{Documents: []*model.Document{doc}, Permit: model.FinitePermit(3, 1)}, nil
		}

		// --- Act ---
		rec := f.do(t, http.MethodPost, "/api/v1/documents/generate", "user-1", generateBody)

		// --- Assert ---
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "user-1", f.gen.Last.UserID)
		assert.Equal(t, []string{"whs-policy"}, f.gen.Last.DocumentIDs)
		assert.Equal(t, "Acme Builders", f.gen.Last.Business.BusinessName)
		permit := decodeBody(t, rec.Body.Bytes())["permit"].(map[string]any)
		assert.Equal(t, float64(2), permit["remaining"])
	})

	t.Run("should ignore a user id smuggled in the body", func(t *testing.T) {
		f := newAPIFixture(t)
		f.gen.GenerateFunc = func(_ context.Context, req usecase.GenerateRequest) (*usecase.GenerateResult, error) {
			return &usecase.GenerateResult{Documents: []*model.Document{doc}}, nil
		}

		f.do(t, http.MethodPost, "/api/v1/documents/generate", "user-1", `{"UserID":"user-2","industry":"construction-trades"}`)

		assert.Equal(t, "user-1", f.gen.Last.UserID)
	})

	t.Run("should return 207 when some documents failed", func(t *testing.T) {
		f := newAPIFixture(t)
		f.gen.GenerateFunc = func(context.Context, usecase.GenerateRequest) (*usecase.GenerateResult, error) {
			return &usecase.GenerateResult{
				Documents: []*model.Document{doc},
				Failed:    []usecase.GenerationFailure{{DocumentType: "risk-register", Error: "generation failed"}},
			}, nil
		}

		rec := f.do(t, http.MethodPost, "/api/v1/documents/generate", "user-1", generateBody)

		assert.Equal(t, http.StatusMultiStatus, rec.Code)
	})

	t.Run("should return 502 with the failures when nothing was generated", func(t *testing.T) {
		f := newAPIFixture(t)
		f.gen.GenerateFunc = func(context.Context, usecase.GenerateRequest) (*usecase.GenerateResult, error) {
			return &usecase.GenerateResult{
				Failed: []usecase.GenerationFailure{{DocumentType: "whs-policy", Error: "generation failed"}},
				Permit: model.FinitePermit(3, 0),
			}, fmt.Errorf("%w: no documents generated", domain.ErrOperationFailed)
		}

		rec := f.do(t, http.MethodPost, "/api/v1/documents/generate", "user-1", generateBody)

		require.Equal(t, http.StatusBadGateway, rec.Code)
		body := decodeBody(t, rec.Body.Bytes())
		assert.Equal(t, "generation_failed", body["error"])
		assert.Len(t, body["failed"], 1)
	})

	t.Run("should return 403 with the permit when quota is exhausted", func(t *testing.T) {
		f := newAPIFixture(t)
		f.gen.GenerateFunc = func(context.Context, usecase.GenerateRequest) (*usecase.GenerateResult, error) {
			return nil, &usecase.QuotaError{Permit: model.FinitePermit(3, 3), Requested: 1}
		}

		rec := f.do(t, http.MethodPost, "/api/v1/documents/generate", "user-1", generateBody)

		require.Equal(t, http.StatusForbidden, rec.Code)
		body := decodeBody(t, rec.Body.Bytes())
		assert.Equal(t, "quota_exceeded", body["error"])
		permit := body["permit"].(map[string]any)
		assert.Equal(t, false, permit["canGenerate"])
		assert.Equal(t, float64(3), permit["used"])
	})

	t.Run("should tell a missing plan apart from a used-up month", func(t *testing.T) {
		cases := []struct {
			permit model.GenerationPermit
			msg    string
		}{
			{model.NoAccessPermit(), "no active plan"},
			{model.FinitePermit(3, 3), "monthly document limit reached"},
			{model.FinitePermit(3, 1), "only 2 documents left this month"},
		}
		for _, tc := range cases {
			f := newAPIFixture(t)
			permit := tc.permit
			f.gen.GenerateFunc = func(context.Context, usecase.GenerateRequest) (*usecase.GenerateResult, error) {
				return nil, &usecase.QuotaError{Permit: permit, Requested: 3}
			}

			rec := f.do(t, http.MethodPost, "/api/v1/documents/generate", "user-1", generateBody)

			require.Equal(t, http.StatusForbidden, rec.Code)
			body := decodeBody(t, rec.Body.Bytes())
			assert.Equal(t, "quota_exceeded", body["error"])
			assert.Equal(t, tc.msg, body["message"])
		}
	})

	t.Run("should map domain errors to status codes", func(t *testing.T) {
		cases := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"pack denied", domain.ErrPackAccessDenied, http.StatusForbidden, "pack_access_denied"},
			{"unknown pack", fmt.Errorf("%w: nope", domain.ErrUnknownPack), http.StatusUnprocessableEntity, "invalid_request"},
			{"format", domain.ErrFormatNotAvailable, http.StatusUnprocessableEntity, "invalid_request"},
			{"busy", domain.ErrBusy, http.StatusConflict, "generation_in_progress"},
			{"internal", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := newAPIFixture(t)
				f.gen.GenerateFunc = func(context.Context, usecase.GenerateRequest) (*usecase.GenerateResult, error) {
					return nil, tc.err
				}

				rec := f.do(t, http.MethodPost, "/api/v1/documents/generate", "user-1", generateBody)

				require.Equal(t, tc.status, rec.Code)
				body := decodeBody(t, rec.Body.Bytes())
				assert.Equal(t, tc.code, body["error"])
				assert.NotContains(t, body["message"], "pq:")
			})
		}
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		f := newAPIFixture(t)
		f.gen.GenerateFunc = func(context.Context, usecase.GenerateRequest) (*usecase.GenerateResult, error) {
			t.Fatal("generate must not be called")
			return nil, nil
		}

		rec := f.do(t, http.MethodPost, "/api/v1/documents/generate", "user-1", `{"industry":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should answer 429 once the caller exceeds the window", func(t *testing.T) {
		f := newAPIFixture(t)
		f.limiter.decision.Allowed = false
		f.limiter.decision.Remaining = 0
		f.limiter.decision.ResetIn = 30 * time.Second
		f.gen.GenerateFunc = func(context.Context, usecase.GenerateRequest) (*usecase.GenerateResult, error) {
			t.Fatal("generate must not be called")
			return nil, nil
		}

		rec := f.do(t, http.MethodPost, "/api/v1/documents/generate", "user-1", generateBody)

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "30", rec.Header().Get("Retry-After"))
		require.Len(t, f.limiter.keys, 1)
		assert.Contains(t, f.limiter.keys[0], "generate")
	})
}

func TestServer_Documents(t *testing.T) {
	link := &usecase.DownloadLink{URL: "https://files.test/documents/user-1/doc-1.pdf", FileName: "WHS_Policy.pdf"}

	t.Run("should redirect downloads to the stored file", func(t *testing.T) {
		f := newAPIFixture(t)
		var got usecase.DownloadRequest
		f.docs.DownloadFunc = func(_ context.Context, req usecase.DownloadRequest) (*usecase.DownloadLink, error) {
			got = req
			return link, nil
		}

		rec := f.do(t, http.MethodGet, "/api/v1/documents/doc-1/download", "user-1", "", "User-Agent", "test-agent")

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, link.URL, rec.Header().Get("Location"))
		assert.Equal(t, "doc-1", got.DocumentID)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, "test-agent", got.UserAgent)
		assert.NotEmpty(t, got.IPAddress)
	})

	t.Run("should return the link as JSON when asked", func(t *testing.T) {
		f := newAPIFixture(t)
		f.docs.DownloadFunc = func(context.Context, usecase.DownloadRequest) (*usecase.DownloadLink, error) {
			return link, nil
		}

		rec := f.do(t, http.MethodGet, "/api/v1/documents/doc-1/download", "user-1", "", "Accept", "application/json")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "WHS_Policy.pdf", decodeBody(t, rec.Body.Bytes())["fileName"])
	})

	t.Run("should return 404 for someone else's document", func(t *testing.T) {
		f := newAPIFixture(t)
		f.docs.DownloadFunc = func(context.Context, usecase.DownloadRequest) (*usecase.DownloadLink, error) {
			return nil, domain.ErrNotFound
		}

		rec := f.do(t, http.MethodGet, "/api/v1/documents/doc-9/download", "user-1", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should delete with 204", func(t *testing.T) {
		f := newAPIFixture(t)
		var deleted string
		f.docs.DeleteFunc = func(_ context.Context, userID, id string) error {
			deleted = userID + "/" + id
			return nil
		}

		rec := f.do(t, http.MethodDelete, "/api/v1/documents/doc-1", "user-1", "")

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "user-1/doc-1", deleted)
	})

	t.Run("should list only the caller's documents", func(t *testing.T) {
		f := newAPIFixture(t)
		f.docs.docs = []*model.Document{{ID: "a", UserID: "user-1"}, {ID: "b", UserID: "user-2"}}

		rec := f.do(t, http.MethodGet, "/api/v1/documents", "user-1", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody(t, rec.Body.Bytes())["documents"], 1)
	})
}

func TestServer_EntitlementStatus(t *testing.T) {
	t.Run("should pass the pack scope through", func(t *testing.T) {
		f := newAPIFixture(t)
		var scope string
		f.ents.StatusFunc = func(_ context.Context, userID, industryID, packID string) (*usecase.EntitlementStatus, error) {
			scope = userID + ":" + industryID + ":" + packID
			yes := true
			return &usecase.EntitlementStatus{GenerationPermit: model.UnlimitedPermit(), PackAccess: &yes}, nil
		}

		rec := f.do(t, http.MethodGet, "/api/v1/entitlements/status?industry=ndis&pack=ndis-full", "user-1", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-1:ndis:ndis-full", scope)
		body := decodeBody(t, rec.Body.Bytes())
		assert.Equal(t, float64(-1), body["limit"])
		assert.Equal(t, true, body["packAccess"])
	})
}

func TestServer_Checkout(t *testing.T) {
	t.Run("should start checkout with the token's email", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/api/v1/checkout", "user-1", `{"priceId":"price_pro_monthly"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-1", f.co.Last.UserID)
		assert.Equal(t, "user-1@example.com.au", f.co.Last.CustomerEmail)
		assert.Equal(t, "cs_test_1", decodeBody(t, rec.Body.Bytes())["sessionId"])
	})

	t.Run("should reject an invalid price with 422", func(t *testing.T) {
		f := newAPIFixture(t)
		f.co.Err = domain.ErrInvalidPrice

		rec := f.do(t, http.MethodPost, "/api/v1/checkout", "user-1", `{"priceId":"price_xxx"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestServer_StripeWebhook(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"accepted", nil, http.StatusOK},
		{"bad signature", domain.ErrInvalidSignature, http.StatusBadRequest},
		{"processing failure", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run("should answer "+tc.name, func(t *testing.T) {
			f := newAPIFixture(t)
			var sig string
			f.billing.WebhookFunc = func(_ context.Context, payload []byte, s string) error {
				sig = s
				return tc.err
			}

			rec := f.do(t, http.MethodPost, "/api/v1/webhooks/stripe", "", `{"id":"evt_1"}`, "Stripe-Signature", "t=1,v1=abc")

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "t=1,v1=abc", sig)
		})
	}
}
