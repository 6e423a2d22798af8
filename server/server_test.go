package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rahsheen/rocketjob/encoding"
	"github.com/rahsheen/rocketjob/sliced"
)

func testServer(t *testing.T, cfg Config) (*httptest.Server, *sliced.PebbleStore) {
	t.Helper()
	store, err := sliced.OpenPebble(t.TempDir(), sliced.PebbleOptions{NoSync: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mux := http.NewServeMux()
	New(sliced.NewQueue(store), cfg).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, store
}

func seed(t *testing.T, store sliced.Store, values ...interface{}) *sliced.Slice {
	t.Helper()
	records := make([]sliced.Record, len(values))
	for i, v := range values {
		rec, err := sliced.NewRecord(v)
		if err != nil {
			t.Fatal(err)
		}
		records[i] = rec
	}
	slice, err := store.Insert(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	return slice
}

func post(t *testing.T, ts *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := encoding.JSONiter.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestClaimEmptyQueue(t *testing.T) {
	ts, _ := testServer(t, Config{})

	resp := post(t, ts, "/v1/slices/next", `{"worker_id":"w-1"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestClaimRequiresWorkerID(t *testing.T) {
	ts, _ := testServer(t, Config{})

	resp := post(t, ts, "/v1/slices/next", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestClaimCompleteCounts(t *testing.T) {
	ts, store := testServer(t, Config{})
	seed(t, store, "a", "b")

	resp := post(t, ts, "/v1/slices/next", `{"worker_id":"w-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d, want 200", resp.StatusCode)
	}

	var claimed sliced.Slice
	decode(t, resp, &claimed)
	if claimed.ID != 1 || claimed.Owner != "w-1" || len(claimed.Records) != 2 {
		t.Fatalf("claimed = %+v", claimed)
	}

	resp = post(t, ts, "/v1/slices/1/complete", `{"worker_id":"w-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d, want 200", resp.StatusCode)
	}

	resp = get(t, ts, "/v1/slices/counts")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("counts status = %d, want 200", resp.StatusCode)
	}
	var counts sliced.Counts
	decode(t, resp, &counts)
	if counts.Completed != 1 || counts.Total() != 1 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestCompleteWrongOwnerConflicts(t *testing.T) {
	ts, store := testServer(t, Config{})
	seed(t, store, "a")

	post(t, ts, "/v1/slices/next", `{"worker_id":"w-1"}`)

	resp := post(t, ts, "/v1/slices/1/complete", `{"worker_id":"w-2"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestCompleteInvalidID(t *testing.T) {
	ts, _ := testServer(t, Config{})

	resp := post(t, ts, "/v1/slices/zero/complete", `{"worker_id":"w-1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFailAndFailures(t *testing.T) {
	ts, store := testServer(t, Config{})
	seed(t, store, "good", "bad", "good")

	post(t, ts, "/v1/slices/next", `{"worker_id":"w-1"}`)

	resp := post(t, ts, "/v1/slices/1/fail",
		`{"worker_id":"w-1","description":"parse error","record_offset":2}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fail status = %d, want 200", resp.StatusCode)
	}

	resp = get(t, ts, "/v1/failures")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("failures status = %d, want 200", resp.StatusCode)
	}

	var failures []struct {
		SliceID      uint64        `json:"slice_id"`
		RecordOffset int           `json:"record_offset"`
		Description  string        `json:"description"`
		Record       sliced.Record `json:"record"`
	}
	decode(t, resp, &failures)
	if len(failures) != 1 {
		t.Fatalf("failures = %+v, want 1", failures)
	}
	f := failures[0]
	if f.SliceID != 1 || f.RecordOffset != 2 || f.Description != "parse error" {
		t.Errorf("failure = %+v", f)
	}
	var rec string
	if err := sliced.DecodeRecord(f.Record, &rec); err != nil {
		t.Fatal(err)
	}
	if rec != "bad" {
		t.Errorf("record = %q, want bad", rec)
	}
}

func TestRequeueFailed(t *testing.T) {
	ts, store := testServer(t, Config{})
	seed(t, store, "a")

	post(t, ts, "/v1/slices/next", `{"worker_id":"w-1"}`)
	post(t, ts, "/v1/slices/1/fail", `{"worker_id":"w-1","description":"boom"}`)

	resp := post(t, ts, "/v1/requeue/failed", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]int64
	decode(t, resp, &body)
	if body["requeued"] != 1 {
		t.Errorf("requeued = %d, want 1", body["requeued"])
	}
}

func TestRequeueRunning(t *testing.T) {
	ts, store := testServer(t, Config{})
	seed(t, store, "a")
	seed(t, store, "b")

	post(t, ts, "/v1/slices/next", `{"worker_id":"host-a-1"}`)
	post(t, ts, "/v1/slices/next", `{"worker_id":"host-b-1"}`)

	resp := post(t, ts, "/v1/requeue/running", `{"worker_prefix":"host-a"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]int64
	decode(t, resp, &body)
	if body["requeued"] != 1 {
		t.Errorf("requeued = %d, want 1", body["requeued"])
	}

	resp = post(t, ts, "/v1/requeue/running", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing prefix status = %d, want 400", resp.StatusCode)
	}
}

func TestClaimRateLimit(t *testing.T) {
	ts, store := testServer(t, Config{ClaimRPS: 1, ClaimBurst: 1})
	seed(t, store, "a")
	seed(t, store, "b")

	first := post(t, ts, "/v1/slices/next", `{"worker_id":"w-1"}`)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first claim status = %d, want 200", first.StatusCode)
	}

	second := post(t, ts, "/v1/slices/next", `{"worker_id":"w-1"}`)
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second claim status = %d, want 429", second.StatusCode)
	}

	// Limits are per worker, so a different worker is unaffected.
	other := post(t, ts, "/v1/slices/next", `{"worker_id":"w-2"}`)
	if other.StatusCode != http.StatusOK {
		t.Fatalf("other worker status = %d, want 200", other.StatusCode)
	}
}
