package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) (string, map[string]string) {
	t.Helper()
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body.Status, body.Checks
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()
	h := New()

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d; want 200", rec.Code)
	}
	status, _ := decode(t, rec)
	if status != "ok" {
		t.Errorf("status = %q; want ok", status)
	}
}

func TestReadyz_NoChecks(t *testing.T) {
	t.Parallel()
	h := New()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("code = %d; want 200", rec.Code)
	}
}

func TestReadyz_AllPass(t *testing.T) {
	t.Parallel()
	h := New(
		Check{Name: "telephony", Probe: func(context.Context) error { return nil }},
		Check{Name: "audio", Probe: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d; want 200", rec.Code)
	}
	status, checks := decode(t, rec)
	if status != "ok" {
		t.Errorf("status = %q; want ok", status)
	}
	if checks["telephony"] != "ok" || checks["audio"] != "ok" {
		t.Errorf("checks = %v", checks)
	}
}

func TestReadyz_OneFailure(t *testing.T) {
	t.Parallel()
	h := New(
		Check{Name: "good", Probe: func(context.Context) error { return nil }},
		Check{Name: "bad", Probe: func(context.Context) error { return errors.New("gateway unreachable") }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d; want 503", rec.Code)
	}
	status, checks := decode(t, rec)
	if status != "fail" {
		t.Errorf("status = %q; want fail", status)
	}
	if checks["good"] != "ok" {
		t.Errorf("good check = %q; want ok", checks["good"])
	}
	if checks["bad"] != "gateway unreachable" {
		t.Errorf("bad check = %q", checks["bad"])
	}
}

func TestReadyz_ProbeGetsBoundedContext(t *testing.T) {
	t.Parallel()
	h := New(Check{Name: "deadline", Probe: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		status, checks := decode(t, rec)
		t.Fatalf("code = %d, status = %s, checks = %v", rec.Code, status, checks)
	}
}
