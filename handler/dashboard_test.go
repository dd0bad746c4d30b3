package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/service"
	"github.com/gin-gonic/gin"
)

// stubSnapshots serves a fixed snapshot and error
type stubSnapshots struct {
	snap       *model.Snapshot
	err        error
	refreshErr error
	lastKey    string
	refreshed  int
}

func (s *stubSnapshots) Key(spreadsheet string) string {
	if spreadsheet == "" {
		return "default-sheet"
	}
	return spreadsheet
}

func (s *stubSnapshots) Get(_ context.Context, key string) (*model.Snapshot, error) {
	s.lastKey = s.Key(key)
	return s.snap, s.err
}

func (s *stubSnapshots) Refresh(_ context.Context, key string) (*model.Snapshot, error) {
	s.lastKey = s.Key(key)
	s.refreshed++
	if s.refreshErr != nil {
		return s.snap, s.refreshErr
	}
	return s.snap, nil
}

func day(d int) *time.Time {
	t := time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func fixtureSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Spreadsheet: "default-sheet",
		Worksheet:   "Lead Tracker",
		FetchedAt:   time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC),
		Issues:      1,
		Leads: []model.Lead{
			{LeadID: "L1", Name: "Ada", Stage: model.StageQualifiedLead, AgentAssigned: "Sarah", CampaignName: "Spring", LeadSource: "Facebook", NextFollowUp: day(15)},
			{LeadID: "L2", Name: "Grace", Stage: model.StageContractSigned, AgentAssigned: "Sarah", CampaignName: "Spring", LeadSource: "Facebook", NextFollowUp: day(16)},
			{LeadID: "L3", Name: "Alan", Stage: model.StageContactMade, AgentAssigned: "Tom", CampaignName: "Winter", LeadSource: "Google", NextFollowUp: day(15)},
			{LeadID: "L4", Name: "Edsger", Stage: model.StageLost, AgentAssigned: model.UnassignedAgent, CampaignName: "Winter", LeadSource: "Google"},
		},
	}
}

func newDashboardRouter(snaps *stubSnapshots, role model.Role, agent string) *gin.Engine {
	h := NewDashboardHandler(snaps, time.UTC, 10)
	h.now = func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("username", "tester")
		if role != "" {
			c.Set("role", role)
		}
		c.Set("agent", agent)
	})
	router.GET("/api/views/:role", h.GetView)
	router.GET("/api/agents", h.ListAgents)
	router.POST("/api/refresh", h.Refresh)
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v\n%s", err, w.Body.String())
	}
	return body
}

func TestGetViewAuthorization(t *testing.T) {
	tests := []struct {
		name           string
		caller         model.Role
		agent          string
		path           string
		expectedStatus int
	}{
		{"admin sees admin", model.RoleAdmin, "", "/api/views/admin", http.StatusOK},
		{"admin sees client", model.RoleAdmin, "", "/api/views/client", http.StatusOK},
		{"admin sees any agent", model.RoleAdmin, "", "/api/views/agent?agent=Tom", http.StatusOK},
		{"admin picks spreadsheet", model.RoleAdmin, "", "/api/views/admin?spreadsheet=other", http.StatusOK},
		{"client sees client", model.RoleClient, "", "/api/views/client", http.StatusOK},
		{"client denied admin", model.RoleClient, "", "/api/views/admin", http.StatusForbidden},
		{"client denied agent", model.RoleClient, "", "/api/views/agent?agent=Sarah", http.StatusForbidden},
		{"client denied spreadsheet", model.RoleClient, "", "/api/views/client?spreadsheet=other", http.StatusForbidden},
		{"agent sees own", model.RoleAgent, "Sarah", "/api/views/agent", http.StatusOK},
		{"agent names self", model.RoleAgent, "Sarah", "/api/views/agent?agent=Sarah", http.StatusOK},
		{"agent denied other agent", model.RoleAgent, "Sarah", "/api/views/agent?agent=Tom", http.StatusForbidden},
		{"agent denied admin", model.RoleAgent, "Sarah", "/api/views/admin", http.StatusForbidden},
		{"anonymous denied", "", "", "/api/views/client", http.StatusForbidden},
		{"unknown view", model.RoleAdmin, "", "/api/views/owner", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newDashboardRouter(&stubSnapshots{snap: fixtureSnapshot()}, tt.caller, tt.agent)
			w := doRequest(router, "GET", tt.path)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetViewAdmin(t *testing.T) {
	router := newDashboardRouter(&stubSnapshots{snap: fixtureSnapshot()}, model.RoleAdmin, "")
	w := doRequest(router, "GET", "/api/views/admin")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Role    model.Role       `json:"role"`
		Summary model.Summary    `json:"summary"`
		Agents  []model.Rollup   `json:"agents"`
		Follow  []model.FollowUp `json:"follow_ups"`
		Snap    SnapshotInfo     `json:"snapshot"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.Role != model.RoleAdmin || resp.Summary.TotalLeads != 4 || resp.Summary.Won != 1 {
		t.Errorf("Unexpected admin view %+v", resp)
	}
	if len(resp.Agents) != 2 || resp.Agents[0].Key != "Sarah" {
		t.Errorf("Expected Sarah to lead the leaderboard, got %+v", resp.Agents)
	}
	if len(resp.Follow) != 2 {
		t.Errorf("Expected today's 2 follow-ups, got %d", len(resp.Follow))
	}
	if resp.Snap.Leads != 4 || resp.Snap.Issues != 1 || resp.Snap.Stale {
		t.Errorf("Unexpected snapshot info %+v", resp.Snap)
	}
}

func TestGetViewClientHidesContacts(t *testing.T) {
	router := newDashboardRouter(&stubSnapshots{snap: fixtureSnapshot()}, model.RoleClient, "")
	w := doRequest(router, "GET", "/api/views/client")

	body := decodeView(t, w)
	for _, key := range []string{"agents", "follow_ups", "recent_leads", "leads", "sources"} {
		if _, ok := body[key]; ok {
			t.Errorf("Client view must not include %q", key)
		}
	}
	if _, ok := body["campaigns"]; !ok {
		t.Error("Expected campaigns in client view")
	}
	if strings.Contains(w.Body.String(), "Ada") {
		t.Error("Client view leaked a lead name")
	}
}

func TestGetViewAgent(t *testing.T) {
	router := newDashboardRouter(&stubSnapshots{snap: fixtureSnapshot()}, model.RoleAgent, "Sarah")
	w := doRequest(router, "GET", "/api/views/agent?stage=contract%20signed&from=2026-01-15&to=2026-01-16")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Agent     string           `json:"agent"`
		Leads     []model.Lead     `json:"leads"`
		FollowUps []model.FollowUp `json:"follow_ups"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Agent != "Sarah" {
		t.Errorf("Expected agent Sarah, got %q", resp.Agent)
	}
	if len(resp.Leads) != 1 || resp.Leads[0].LeadID != "L2" {
		t.Errorf("Expected only the signed lead, got %+v", resp.Leads)
	}
	if len(resp.FollowUps) != 2 {
		t.Errorf("Expected 2 follow-ups in the window, got %d", len(resp.FollowUps))
	}
}

func TestGetViewBadParameters(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"unknown stage", "/api/views/admin?stage=won"},
		{"bad from", "/api/views/admin?from=15/01/2026"},
		{"bad to", "/api/views/admin?to=tomorrow"},
		{"reversed window", "/api/views/admin?from=2026-01-16&to=2026-01-15"},
		{"unknown agent", "/api/views/agent?agent=Nobody"},
		{"missing agent", "/api/views/agent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newDashboardRouter(&stubSnapshots{snap: fixtureSnapshot()}, model.RoleAdmin, "")
			w := doRequest(router, "GET", tt.path)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetViewOnlyToDefaultsFromToToday(t *testing.T) {
	router := newDashboardRouter(&stubSnapshots{snap: fixtureSnapshot()}, model.RoleAdmin, "")
	w := doRequest(router, "GET", "/api/views/admin?to=2026-01-15")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetViewSourceErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"connection", fmt.Errorf("%w: open spreadsheet: 403", service.ErrConnection), http.StatusBadGateway},
		{"worksheet missing", fmt.Errorf("%w: worksheet %q", service.ErrNotFound, "Lead Tracker"), http.StatusNotFound},
		{"no spreadsheet", fmt.Errorf("%w: no spreadsheet configured", service.ErrInvalidArgument), http.StatusBadRequest},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newDashboardRouter(&stubSnapshots{err: tt.err}, model.RoleAdmin, "")
			w := doRequest(router, "GET", "/api/views/admin")
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("Expected error body, got %s", w.Body.String())
			}
		})
	}
}

func TestGetViewServesStaleSnapshot(t *testing.T) {
	snaps := &stubSnapshots{
		snap: fixtureSnapshot(),
		err:  fmt.Errorf("%w: read worksheet: timeout", service.ErrConnection),
	}
	router := newDashboardRouter(snaps, model.RoleClient, "")
	w := doRequest(router, "GET", "/api/views/client")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 with stale data, got %d", w.Code)
	}

	var resp struct {
		Summary model.Summary `json:"summary"`
		Snap    SnapshotInfo  `json:"snapshot"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !resp.Snap.Stale || !strings.Contains(resp.Snap.Warning, "timeout") {
		t.Errorf("Expected stale flag and warning, got %+v", resp.Snap)
	}
	if resp.Summary.TotalLeads != 4 {
		t.Errorf("Expected the previous snapshot's data, got %+v", resp.Summary)
	}
}

func TestListAgents(t *testing.T) {
	router := newDashboardRouter(&stubSnapshots{snap: fixtureSnapshot()}, model.RoleAdmin, "")
	w := doRequest(router, "GET", "/api/agents")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp AgentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(resp.Agents) != 2 || resp.Agents[0] != "Sarah" || resp.Agents[1] != "Tom" {
		t.Errorf("Unexpected agents %v", resp.Agents)
	}
}

func TestRefresh(t *testing.T) {
	snaps := &stubSnapshots{snap: fixtureSnapshot()}
	router := newDashboardRouter(snaps, model.RoleAdmin, "")

	w := doRequest(router, "POST", "/api/refresh?spreadsheet=other")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if snaps.refreshed != 1 || snaps.lastKey != "other" {
		t.Errorf("Expected a refresh of 'other', got %d refreshes of %q", snaps.refreshed, snaps.lastKey)
	}

	snaps.refreshErr = fmt.Errorf("%w: quota exceeded", service.ErrConnection)
	w = doRequest(router, "POST", "/api/refresh")
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}
}
