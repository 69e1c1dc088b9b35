package host

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solhaven/agenthost/tasks"
)

func getPing(t *testing.T, url string) (int, pingResponse) {
	t.Helper()
	resp, err := http.Get(url + "/ping")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	defer resp.Body.Close()

	var body pingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode ping response: %v", err)
	}
	return resp.StatusCode, body
}

func TestPingHealthyWhenIdle(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status, body := getPing(t, ts.URL)
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body.Status != string(tasks.StatusHealthy) {
		t.Errorf("status = %q, want %q", body.Status, tasks.StatusHealthy)
	}
	if body.TimeOfLastUpdate == 0 {
		t.Error("time_of_last_update missing")
	}
}

func TestPingBusyWithActiveTasks(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	a := srv.Tasks().Add("first", nil)
	b := srv.Tasks().Add("second", nil)

	if _, body := getPing(t, ts.URL); body.Status != string(tasks.StatusHealthyBusy) {
		t.Errorf("status = %q, want %q", body.Status, tasks.StatusHealthyBusy)
	}

	srv.Tasks().Complete(a)
	srv.Tasks().Complete(b)

	if _, body := getPing(t, ts.URL); body.Status != string(tasks.StatusHealthy) {
		t.Errorf("status after completion = %q, want %q", body.Status, tasks.StatusHealthy)
	}
}

func TestPingForcedOverride(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	srv.Tasks().Force(tasks.StatusHealthyBusy)
	if _, body := getPing(t, ts.URL); body.Status != string(tasks.StatusHealthyBusy) {
		t.Errorf("forced status = %q, want %q", body.Status, tasks.StatusHealthyBusy)
	}

	srv.Tasks().ClearForced()
	if _, body := getPing(t, ts.URL); body.Status != string(tasks.StatusHealthy) {
		t.Errorf("status after clear = %q, want %q", body.Status, tasks.StatusHealthy)
	}
}

func TestPingSurvivesPanickingProvider(t *testing.T) {
	srv := newTestServer(t)
	srv.SetPingHandler(func() tasks.Status { panic("provider exploded") })

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status, body := getPing(t, ts.URL)
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body.Status != string(tasks.StatusHealthy) {
		t.Errorf("status = %q, want %q", body.Status, tasks.StatusHealthy)
	}
}

func TestPingHonorsCustomProvider(t *testing.T) {
	srv := newTestServer(t)
	srv.SetPingHandler(func() tasks.Status { return tasks.StatusHealthyBusy })

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	if _, body := getPing(t, ts.URL); body.Status != string(tasks.StatusHealthyBusy) {
		t.Errorf("status = %q, want %q", body.Status, tasks.StatusHealthyBusy)
	}
}
