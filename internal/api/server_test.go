package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jhbizops/builder.contractors-sub000/internal/config"
	"github.com/jhbizops/builder.contractors-sub000/internal/engine"
	"github.com/jhbizops/builder.contractors-sub000/internal/engine/enginetest"
	"github.com/jhbizops/builder.contractors-sub000/internal/models"
)

func newTestHandler() http.Handler {
	eng := engine.New(enginetest.NewMemStore(), enginetest.NewMemLedger())
	return New(config.Load(), eng, nil, nil).Router()
}

func doRequest(t *testing.T, h http.Handler, method, path string, actor *models.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != nil {
		req.Header.Set("X-Actor-ID", actor.ID)
		req.Header.Set("X-Actor-Role", actor.Role)
		if actor.Approved {
			req.Header.Set("X-Actor-Approved", "true")
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) models.Job {
	t.Helper()
	var job models.Job
	if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	return job
}

var (
	httpOwner   = models.Actor{ID: "owner-1", Role: models.RoleBuilder, Approved: true}
	httpBuilder = models.Actor{ID: "builder-1", Role: models.RoleBuilder, Approved: true}
	httpSales   = models.Actor{ID: "sales-1", Role: models.RoleSales, Approved: true}
)

func createViaHTTP(t *testing.T, h http.Handler) models.Job {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/jobs", &httpOwner, map[string]any{
		"title":           "Rewire unit 4",
		"trade":           "electrical",
		"private_details": "gate code 4411",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	return decodeJob(t, rec)
}

func TestOutcomeStatusMapping(t *testing.T) {
	h := newTestHandler()
	job := createViaHTTP(t, h)

	// Missing actor identity.
	if rec := doRequest(t, h, http.MethodGet, "/jobs", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no actor: status = %d, want 401", rec.Code)
	}

	// Validation.
	if rec := doRequest(t, h, http.MethodPost, "/jobs", &httpOwner, map[string]any{"title": ""}); rec.Code != http.StatusBadRequest {
		t.Fatalf("validation: status = %d, want 400", rec.Code)
	}

	// Forbidden.
	if rec := doRequest(t, h, http.MethodPost, "/jobs", &httpSales, map[string]any{"title": "x", "trade": "plumbing"}); rec.Code != http.StatusForbidden {
		t.Fatalf("forbidden create: status = %d, want 403", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPatch, "/jobs/"+job.ID, &httpBuilder, map[string]any{"title": "hijack"}); rec.Code != http.StatusForbidden {
		t.Fatalf("forbidden update: status = %d, want 403", rec.Code)
	}

	// Not found.
	if rec := doRequest(t, h, http.MethodGet, "/jobs/missing", &httpOwner, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job: status = %d, want 404", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPatch, "/jobs/missing", &httpBuilder, map[string]any{"title": "x"}); rec.Code != http.StatusNotFound {
		t.Fatalf("missing update: status = %d, want 404", rec.Code)
	}

	// Conflict: second claim of the same job.
	if rec := doRequest(t, h, http.MethodPost, "/jobs/"+job.ID+"/claim", &httpBuilder, nil); rec.Code != http.StatusOK {
		t.Fatalf("first claim: status = %d, want 200", rec.Code)
	}
	rec := doRequest(t, h, http.MethodPost, "/jobs/"+job.ID+"/claim", &models.Actor{ID: "builder-2", Role: models.RoleBuilder, Approved: true}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("losing claim: status = %d, want 409", rec.Code)
	}
	if body := rec.Body.String(); !bytes.Contains([]byte(body), []byte("Job already assigned")) {
		t.Fatalf("conflict body = %q, want Job already assigned", body)
	}
}

func TestListSanitizesForViewer(t *testing.T) {
	h := newTestHandler()
	createViaHTTP(t, h)

	rec := doRequest(t, h, http.MethodGet, "/jobs?trade=electrical,plumbing&status=open", &httpBuilder, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var payload struct {
		Jobs []models.Job `json:"jobs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(payload.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(payload.Jobs))
	}
	if payload.Jobs[0].PrivateDetails != nil {
		t.Fatal("list leaked private details to non-owner")
	}

	asOwner := doRequest(t, h, http.MethodGet, "/jobs/"+payload.Jobs[0].ID, &httpOwner, nil)
	if got := decodeJob(t, asOwner); got.PrivateDetails == nil {
		t.Fatal("owner get lost private details")
	}
}

func TestActivityAndInviteEndpoints(t *testing.T) {
	h := newTestHandler()
	job := createViaHTTP(t, h)

	rec := doRequest(t, h, http.MethodPost, "/jobs/"+job.ID+"/activity", &httpBuilder, map[string]any{
		"note": "keen to help with this one",
		"kind": "collaboration_request",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post activity: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var entry models.ActivityEntry
	if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Action != models.ActionJobCollaborationRequest {
		t.Fatalf("action = %s", entry.Action)
	}

	rec = doRequest(t, h, http.MethodPost, "/jobs/"+job.ID+"/invite", &httpOwner, map[string]any{
		"emails":  []string{" Sparky@Example.com ", "sparky@example.com"},
		"message": "have a look",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("invite: status = %d body=%s", rec.Code, rec.Body.String())
	}
	var receipt engine.InviteReceipt
	if err := json.NewDecoder(rec.Body).Decode(&receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if len(receipt.Invited) != 1 || receipt.Invited[0] != "sparky@example.com" {
		t.Fatalf("invited = %v", receipt.Invited)
	}

	rec = doRequest(t, h, http.MethodGet, "/jobs/"+job.ID+"/activity", &httpBuilder, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list activity: status = %d", rec.Code)
	}
	var activity struct {
		Activity []models.ActivityEntry `json:"activity"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&activity); err != nil {
		t.Fatalf("decode activity: %v", err)
	}
	// job_created, job_collaboration_request, job_invite_sent.
	if len(activity.Activity) != 3 {
		t.Fatalf("activity entries = %d, want 3", len(activity.Activity))
	}
}

func TestFilterFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs?owner=o1&assignee=a1&status=open,%20in_progress&trade=electrical&region=,", nil)
	f := filterFromQuery(req)
	if f.OwnerID != "o1" || f.AssigneeID != "a1" {
		t.Fatalf("ids: %+v", f)
	}
	if len(f.Statuses) != 2 || f.Statuses[1] != "in_progress" {
		t.Fatalf("statuses: %v", f.Statuses)
	}
	if len(f.Trades) != 1 || f.Trades[0] != "electrical" {
		t.Fatalf("trades: %v", f.Trades)
	}
	if f.Regions != nil {
		t.Fatalf("regions should drop empty values: %v", f.Regions)
	}
	if f.Countries != nil {
		t.Fatalf("countries should be nil when absent: %v", f.Countries)
	}
}
