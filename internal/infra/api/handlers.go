package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/infra/logging"
	"formative-compliance/internal/usecase"
)

const (
	maxJSONBody    = 64 << 10
	maxWebhookBody = 64 << 10
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

// ---- catalog ----

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"industries": s.catalog.Industries(),
		"stats":      s.catalog.Stats(),
	})
}

// ---- entitlements ----

func (s *Server) handleEntitlementStatus(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserIDFrom(r.Context())
	q := r.URL.Query()
	st, err := s.entitlements.Status(r.Context(), userID, q.Get("industry"), q.Get("pack"))
	if err != nil {
		s.logFailure(r, err, "entitlement status failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ---- documents ----

type generationFailedBody struct {
	Error string `json:"error"`
	*usecase.GenerateResult
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req usecase.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = logging.UserIDFrom(r.Context())

	res, err := s.generation.Generate(r.Context(), req)
	if err != nil {
		if res != nil && errors.Is(err, domain.ErrOperationFailed) {
			writeJSON(w, http.StatusBadGateway, generationFailedBody{Error: "generation_failed", GenerateResult: res})
			return
		}
		s.logFailure(r, err, "generate failed")
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if len(res.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, res)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.List(r.Context(), logging.UserIDFrom(r.Context()), queryInt(r, "offset", 0), queryInt(r, "limit", 50))
	if err != nil {
		s.logFailure(r, err, "list documents failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDocumentStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.documents.Stats(r.Context(), logging.UserIDFrom(r.Context()))
	if err != nil {
		s.logFailure(r, err, "document stats failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleDownload redirects to the stored file; clients asking for JSON get the link instead.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	link, err := s.documents.Download(r.Context(), usecase.DownloadRequest{
		UserID:     logging.UserIDFrom(r.Context()),
		DocumentID: chi.URLParam(r, "id"),
		IPAddress:  logging.ClientIPFrom(r.Context()),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		s.logFailure(r, err, "download failed")
		writeDomainError(w, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, link)
		return
	}
	http.Redirect(w, r, link.URL, http.StatusFound)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := s.documents.Delete(r.Context(), logging.UserIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.logFailure(r, err, "delete document failed")
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	out, err := s.documents.Activity(r.Context(), logging.UserIDFrom(r.Context()), queryInt(r, "limit", 20))
	if err != nil {
		s.logFailure(r, err, "activity failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": out})
}

// ---- billing ----

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var in usecase.CheckoutInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.UserID = logging.UserIDFrom(r.Context())
	in.CustomerEmail = emailFrom(r.Context())

	res, err := s.checkout.Start(r.Context(), in)
	if err != nil {
		s.logFailure(r, err, "checkout failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": res.SessionID, "url": res.URL})
}

// handleStripeWebhook answers 400 for bad signatures and 500 for processing failures so the
// processor retries the delivery.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "webhook body too large")
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if err := s.billing.HandleWebhook(r.Context(), payload, sig); err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			writeError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
			return
		}
		s.logFailure(r, err, "webhook processing failed")
		writeError(w, http.StatusInternalServerError, "webhook_failed", "event not processed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// ---- health ----

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for name, p := range s.probes {
		if err := p.Ping(r.Context()); err != nil {
			l := logging.With(r.Context(), s.log)
			l.Warn().Err(err).Str("dependency", name).Msg("readiness probe failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "dependency": name})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logFailure(r *http.Request, err error, msg string) {
	status, _ := classify(err)
	l := logging.With(r.Context(), s.log)
	ev := l.Debug()
	if status >= 500 {
		ev = l.Error()
	}
	ev.Err(err).Str("op", routePattern(r)).Msg(msg)
}
