package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rewire/rewire/pkg/clock"
	"github.com/rewire/rewire/pkg/rewiretypes"
	"github.com/rewire/rewire/pkg/store"
	"github.com/rewire/rewire/pkg/trial"
)

func setup() (*httptest.Server, store.Store) {
	fc := clock.NewFake(1000)
	s := store.NewMemoryStore(fc)
	tm := trial.New(s, fc)
	srv := New(s, tm, "s3cr3t", zerolog.Nop(), nil)
	return httptest.NewServer(srv.Handler()), s
}

func TestAdminNewRequiresToken(t *testing.T) {
	ts, _ := setup()
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/admin/new", "application/x-www-form-urlencoded", strings.NewReader("name=job"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}
}

func TestAdminNewAndObserveRoundTrip(t *testing.T) {
	ts, s := setup()
	defer ts.Close()

	form := url.Values{
		"type":                {"schedule"},
		"name":                {"nightly-etl"},
		"owner_contact":       {"ops@example.com"},
		"expected_interval_s": {"3600"},
		"tolerance_s":         {"60"},
	}
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/admin/new", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer s3cr3t")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin/new: want 200, got %d", resp.StatusCode)
	}

	exps, err := s.ListEnabled(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(exps) != 1 {
		t.Fatalf("want 1 expectation, got %d", len(exps))
	}
	id := exps[0].ID

	obsResp, err := http.Post(ts.URL+"/observe/"+id, "application/x-www-form-urlencoded", strings.NewReader("kind=start"))
	if err != nil {
		t.Fatal(err)
	}
	defer obsResp.Body.Close()
	if obsResp.StatusCode != http.StatusOK {
		t.Fatalf("observe: want 200, got %d", obsResp.StatusCode)
	}

	getResp, err := http.Get(ts.URL + "/observe/" + id)
	if err != nil {
		t.Fatal(err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get observe: want 200, got %d", getResp.StatusCode)
	}
}

func TestObserveBadKind(t *testing.T) {
	ts, s := setup()
	defer ts.Close()

	exp := rewiretypes.Expectation{
		ID: "e1", Type: rewiretypes.TypeSchedule, Name: "job", OwnerContact: "ops@example.com",
		ExpectedIntervalS: 60, Enabled: true,
	}
	if err := s.CreateExpectation(t.Context(), exp); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(ts.URL+"/observe/e1", "application/x-www-form-urlencoded", strings.NewReader("kind=bogus"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}

func TestObserveUnknownExpectation(t *testing.T) {
	ts, _ := setup()
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/observe/nope", "application/x-www-form-urlencoded", strings.NewReader("kind=start"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestAckUnknownTrial(t *testing.T) {
	ts, _ := setup()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ack/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	ts, _ := setup()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}
