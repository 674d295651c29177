package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// HealthChecker reports whether one dependency is usable.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// DatabaseHealthChecker pings the defect database.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

// DirHealthChecker checks that a data directory exists.
type DirHealthChecker struct {
	Path string
}

func (d *DirHealthChecker) Check(context.Context) error {
	fi, err := os.Stat(d.Path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", d.Path)
	}
	return nil
}

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks,omitempty"`
}

type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

// runChecks runs every checker under one deadline and reports whether all passed.
func runChecks(ctx context.Context, checkers map[string]HealthChecker) (map[string]CheckStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok := true
	out := make(map[string]CheckStatus, len(checkers))
	for name, checker := range checkers {
		start := time.Now()
		err := checker.Check(ctx)
		st := CheckStatus{Status: "healthy", Latency: time.Since(start).String()}
		if err != nil {
			ok = false
			st.Status, st.Message = "unhealthy", err.Error()
		}
		out[name] = st
	}
	return out, ok
}

func writeStatus(w http.ResponseWriter, ok bool, body HealthStatus) {
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// HealthHandler runs every checker and answers 503 with the failing details if any fails.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks, ok := runChecks(r.Context(), checkers)
		body := HealthStatus{Status: "healthy", Timestamp: time.Now(), Checks: checks}
		if !ok {
			body.Status = "unhealthy"
		}
		writeStatus(w, ok, body)
	}
}

// ReadinessHandler answers 200 once every checker passes, without per-check details.
func ReadinessHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, ok := runChecks(r.Context(), checkers)
		body := HealthStatus{Status: "ready", Timestamp: time.Now()}
		if !ok {
			body.Status = "not_ready"
		}
		writeStatus(w, ok, body)
	}
}

// LivenessHandler only proves the process serves HTTP.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
