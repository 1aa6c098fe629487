package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/usecase"
)

type emailKey struct{}

func withEmail(ctx context.Context, email string) context.Context {
	if email == "" {
		return ctx
	}
	return context.WithValue(ctx, emailKey{}, email)
}

func emailFrom(ctx context.Context) string {
	v, _ := ctx.Value(emailKey{}).(string)
	return v
}

type errorBody struct {
	Error   string                  `json:"error"`
	Message string                  `json:"message,omitempty"`
	Permit  *model.GenerationPermit `json:"permit,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// quotaMessage tells "upgrade" apart from "wait for next month".
func quotaMessage(qe *usecase.QuotaError) string {
	switch {
	case qe.Permit.Limit == 0:
		return "no active plan"
	case qe.Permit.Remaining > 0:
		return fmt.Sprintf("only %d documents left this month", qe.Permit.Remaining)
	default:
		return "monthly document limit reached"
	}
}

// writeDomainError maps use case errors to a status and a stable error code. Messages for
// 5xx responses never carry the underlying error.
func writeDomainError(w http.ResponseWriter, err error) {
	var qe *usecase.QuotaError
	if errors.As(err, &qe) {
		p := qe.Permit
		writeJSON(w, http.StatusForbidden, errorBody{
			Error:   "quota_exceeded",
			Message: quotaMessage(qe),
			Permit:  &p,
		})
		return
	}
	status, code := classify(err)
	msg := err.Error()
	if status >= 500 {
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrPackAccessDenied):
		return http.StatusForbidden, "pack_access_denied"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusForbidden, "quota_exceeded"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrUnknownIndustry),
		errors.Is(err, domain.ErrUnknownPack),
		errors.Is(err, domain.ErrUnknownDocument),
		errors.Is(err, domain.ErrDocumentNotInPack),
		errors.Is(err, domain.ErrFormatNotAvailable),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusUnprocessableEntity, "invalid_request"
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict, "generation_in_progress"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}
