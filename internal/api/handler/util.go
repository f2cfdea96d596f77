package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/ramp-orchestrator/internal/api/middleware"
	"github.com/ayo6706/ramp-orchestrator/internal/api/problem"
	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/executor"
	"github.com/ayo6706/ramp-orchestrator/internal/gateway"
	"github.com/ayo6706/ramp-orchestrator/internal/repository"
	"github.com/ayo6706/ramp-orchestrator/internal/service"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestWallet(r *http.Request) (string, bool) {
	wallet := middleware.WalletFromContext(r.Context())
	return wallet, wallet != ""
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// respondServiceError maps order errors onto problem responses.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *service.ValidationError
	var kyc *service.KYCError
	var upstream *gateway.UpstreamError

	switch {
	case errors.As(err, &kyc):
		problem.WriteDetails(w, r, problem.Details{
			Type:      problem.Type("order/kyc-required"),
			Status:    http.StatusForbidden,
			Detail:    kyc.Reason,
			KYCLink:   kyc.Link,
			KYCStatus: string(kyc.Status),
		})
	case errors.As(err, &validation):
		problem.WriteDetails(w, r, problem.Details{
			Type:   problem.Type("order/validation"),
			Status: http.StatusUnprocessableEntity,
			Detail: validation.Error(),
			Field:  validation.Field,
		})
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, service.ErrUnsupportedRate):
		RespondError(w, r, http.StatusUnprocessableEntity, "order/validation", err.Error())
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, repository.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "order/not-found", err.Error())
	case errors.Is(err, executor.ErrNoPendingPayment):
		RespondError(w, r, http.StatusNotFound, "payment/not-pending", err.Error())
	case errors.Is(err, service.ErrOperationPending):
		RespondError(w, r, http.StatusConflict, "order/operation-pending", err.Error())
	case errors.Is(err, service.ErrSelectionLocked):
		RespondError(w, r, http.StatusConflict, "order/selection-locked", err.Error())
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrNoQuote):
		RespondError(w, r, http.StatusConflict, "order/invalid-transition", err.Error())
	case errors.Is(err, service.ErrOrderReset):
		RespondError(w, r, http.StatusConflict, "order/reset", err.Error())
	case errors.Is(err, service.ErrWalletRequired),
		errors.Is(err, executor.ErrWrongChain),
		errors.Is(err, executor.ErrChainUnknown):
		RespondError(w, r, http.StatusConflict, "order/wallet", err.Error())
	case errors.As(err, &upstream), errors.Is(err, gateway.ErrMalformedQuote):
		RespondError(w, r, http.StatusBadGateway, "upstream/ramp-backend", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		RespondError(w, r, http.StatusGatewayTimeout, "upstream/timeout", "upstream request timed out")
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("unhandled request error",
			zap.String("path", r.URL.Path),
			zap.String("trace_id", middleware.TraceIDFromContext(r.Context())),
			zap.Error(err),
		)
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "57014": // query_canceled
		return http.StatusServiceUnavailable, "db/query-canceled", "storage is busy, retry later", true
	default:
		return 0, "", "", false
	}
}
