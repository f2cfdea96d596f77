package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ayo6706/ramp-orchestrator/internal/api/problem"
	"github.com/ayo6706/ramp-orchestrator/internal/idempotency"
	"github.com/ayo6706/ramp-orchestrator/internal/observability"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	// ReplayHeader names the layer that served a replayed response.
	ReplayHeader = "X-Idempotent-Replay"

	maxIdempotencyKey = 128
)

// IdempotencyMiddleware guards the order steps that reach the ramp backend
// (confirm, transfer). The first response for a key is stored and replayed to
// retries, so a double-submitted confirm cannot mint a second quote.
//
// Keys are scoped to wallet and session. Attempts that end in a server error
// or a conflict are released rather than stored, so the client may retry
// with the same key.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			switch {
			case clientKey == "":
				observability.IncrementIdempotencyEvent("missing_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), "", IdempotencyHeader+" header is required")
				return
			case len(clientKey) > maxIdempotencyKey:
				observability.IncrementIdempotencyEvent("invalid_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/invalid-key"), "", IdempotencyHeader+" is too long")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), "", "failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := scopedKey(r, clientKey)
			reqHash := hashRequest(r.Method, r.URL.Path, body)
			log := logger.With(zap.String("idempotency_key", clientKey), zap.String("trace_id", TraceIDFromContext(r.Context())))

			rec, err := store.Lookup(r.Context(), key, reqHash)
			switch {
			case err == nil:
				observability.IncrementIdempotencyEvent("replay")
				replay(w, rec)
				return
			case errors.Is(err, idempotency.ErrHashMismatch):
				observability.IncrementIdempotencyEvent("hash_mismatch")
				problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), "", "idempotency key was used with a different request")
				return
			case errors.Is(err, idempotency.ErrInProgress):
				awaitPeer(w, r, store, key, reqHash, log)
				return
			case !errors.Is(err, idempotency.ErrNotFound):
				observability.IncrementIdempotencyEvent("lookup_error")
				log.Warn("idempotency lookup failed", zap.Error(err))
			}

			reserved, err := store.Reserve(r.Context(), key, reqHash, r.Method, r.URL.Path)
			if err != nil {
				observability.IncrementIdempotencyEvent("reserve_error")
				log.Error("idempotency reserve failed", zap.Error(err))
				problem.Write(w, r, http.StatusServiceUnavailable, problem.Type("idempotency/unavailable"), "", "idempotency store unavailable")
				return
			}
			if !reserved {
				awaitPeer(w, r, store, key, reqHash, log)
				return
			}
			observability.IncrementIdempotencyEvent("reserved")

			recorder := &bodyRecorder{statusRecorder: statusRecorder{ResponseWriter: w}}
			next.ServeHTTP(recorder, r)
			status := recorder.code()

			// The outcome is stored even if the client has gone away.
			ctx := context.WithoutCancel(r.Context())
			if !replayable(status) {
				observability.IncrementIdempotencyEvent("released")
				if err := store.Release(ctx, key, reqHash); err != nil {
					log.Warn("idempotency release failed", zap.Error(err))
				}
				return
			}
			contentType := recorder.Header().Get("Content-Type")
			if contentType == "" {
				contentType = "application/json"
			}
			if _, err := store.Finalize(ctx, key, reqHash, status, recorder.body.Bytes(), contentType); err != nil {
				observability.IncrementIdempotencyEvent("finalize_error")
				log.Warn("idempotency finalize failed", zap.Error(err))
				return
			}
			observability.IncrementIdempotencyEvent("finalized")
		})
	}
}

// awaitPeer answers a request whose key is held by a concurrent request.
func awaitPeer(w http.ResponseWriter, r *http.Request, store *idempotency.Store, key, reqHash string, log *zap.Logger) {
	rec, err := store.WaitForCompletion(r.Context(), key, reqHash)
	if err == nil {
		observability.IncrementIdempotencyEvent("replay_after_wait")
		replay(w, rec)
		return
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	log.Info("idempotent request not replayed", zap.Error(err))
	problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), "", "a request with this idempotency key did not complete; retry")
}

func scopedKey(r *http.Request, clientKey string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(WalletFromContext(r.Context())))
	b.WriteByte(':')
	b.WriteString(chi.URLParam(r, "id"))
	b.WriteByte(':')
	b.WriteString(clientKey)
	return b.String()
}

// replayable reports whether a response is final for its key.
func replayable(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusConflict
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set(ReplayHeader, rec.ServedBy)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

type bodyRecorder struct {
	statusRecorder
	body bytes.Buffer
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	br.body.Write(b)
	return br.statusRecorder.Write(b)
}
