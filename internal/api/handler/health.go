package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler serves liveness and readiness. Postgres and redis are
// optional; an unconfigured one is reported as "disabled".
type HealthHandler struct {
	db    *pgxpool.Pool
	redis redis.Cmdable
}

func NewHealthHandler(db *pgxpool.Pool, rdb redis.Cmdable) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

type readiness struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready pings each configured backend. Any failed ping makes the instance
// unready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	res := readiness{Status: "ready", Components: map[string]string{
		"postgres": "disabled",
		"redis":    "disabled",
	}}
	if h.db != nil {
		res.Components["postgres"] = probe(h.db.Ping(ctx))
	}
	if h.redis != nil {
		res.Components["redis"] = probe(h.redis.Ping(ctx).Err())
	}

	status := http.StatusOK
	for _, state := range res.Components {
		if state == "down" {
			res.Status = "unready"
			status = http.StatusServiceUnavailable
		}
	}
	RespondJSON(w, status, res)
}

func probe(err error) string {
	if err != nil {
		return "down"
	}
	return "up"
}
