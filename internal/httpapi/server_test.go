package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"workermgr/internal/manager"
	"workermgr/pkg/types"
)

type fakeService struct {
	workers []types.WorkerStatus
	sanity  manager.SanityReport
}

func (f fakeService) Workers() []types.WorkerStatus     { return f.workers }
func (f fakeService) SanityCheck() manager.SanityReport { return f.sanity }
func (f fakeService) Uptime() time.Duration             { return 90 * time.Second }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestWorkersEndpoint(t *testing.T) {
	svc := fakeService{workers: []types.WorkerStatus{{ID: "9000", PID: 42, SockType: "tcp", Port: "9000"}}}
	rr := get(t, NewMux(svc), "/workers")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	var resp types.WorkersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Workers) != 1 || resp.Workers[0].PID != 42 || resp.UptimeSeconds != 90 {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestHealthzReflectsSanity(t *testing.T) {
	ok := fakeService{sanity: manager.SanityReport{WorkerBin: "/bin/w", WorkerBinFound: true}}
	if rr := get(t, NewMux(ok), "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthy status=%d", rr.Code)
	}
	bad := fakeService{sanity: manager.SanityReport{WorkerBin: "/nope", Error: "missing"}}
	rr := get(t, NewMux(bad), "/healthz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status=%d", rr.Code)
	}
	var rep manager.SanityReport
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil || rep.Error != "missing" {
		t.Fatalf("body=%s err=%v", rr.Body.String(), err)
	}
}

func TestUnknownRouteIsJSONError(t *testing.T) {
	rr := get(t, NewMux(fakeService{}), "/nope")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	var e types.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil || e.Code != http.StatusNotFound {
		t.Fatalf("body=%s err=%v", rr.Body.String(), err)
	}

	rr = httptest.NewRecorder()
	NewMux(fakeService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/workers", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /workers status=%d", rr.Code)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	h := NewMux(fakeService{})
	if rr := get(t, h, "/workers"); rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", rr.Code)
	}
	body := rr.Body.Bytes()
	for _, want := range []string{
		`workermgr_ops_requests_total{class="2xx",method="GET",route="/workers"}`,
		`workermgr_ops_request_duration_seconds_bucket{route="/workers"`,
		"workermgr_manager_workers",
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("expected %s in metrics output", want)
		}
	}
}

func TestMetricsBucketUnknownPaths(t *testing.T) {
	h := NewMux(fakeService{})
	for _, p := range []string{"/nope", "/workers/9000", "/a/b/c"} {
		if rr := get(t, h, p); rr.Code != http.StatusNotFound {
			t.Fatalf("%s status=%d", p, rr.Code)
		}
	}
	body := get(t, h, "/metrics").Body.Bytes()
	if !bytes.Contains(body, []byte(`workermgr_ops_requests_total{class="4xx",method="GET",route="other"}`)) {
		t.Fatalf("unknown paths not counted under route=other:\n%s", body)
	}
	for _, p := range []string{`route="/nope"`, `route="/workers/9000"`, `route="/a/b/c"`} {
		if bytes.Contains(body, []byte(p)) {
			t.Fatalf("raw path leaked into labels: %s", p)
		}
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{0: "2xx", 200: "2xx", 204: "2xx", 404: "4xx", 405: "4xx", 503: "5xx"}
	for code, want := range cases {
		if got := statusClass(code); got != want {
			t.Fatalf("statusClass(%d)=%q want %q", code, got, want)
		}
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ListenAndServe(ctx, addr, fakeService{}) }()

	var resp *http.Response
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err = http.Get("http://" + addr + "/workers")
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatalf("server did not stop")
	}
}
