package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/middleware"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/service"
	"github.com/gin-gonic/gin"
)

// SnapshotProvider is what the dashboard needs from the snapshot service
type SnapshotProvider interface {
	Key(spreadsheet string) string
	Get(ctx context.Context, key string) (*model.Snapshot, error)
	Refresh(ctx context.Context, key string) (*model.Snapshot, error)
}

type DashboardHandler struct {
	snapshots   SnapshotProvider
	location    *time.Location
	recentLimit int
	now         func() time.Time
}

func NewDashboardHandler(snapshots SnapshotProvider, loc *time.Location, recentLimit int) *DashboardHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardHandler{
		snapshots:   snapshots,
		location:    loc,
		recentLimit: recentLimit,
		now:         time.Now,
	}
}

// SnapshotInfo describes the data a response was computed from
type SnapshotInfo struct {
	Spreadsheet string    `json:"spreadsheet"`
	FetchedAt   time.Time `json:"fetched_at"`
	Leads       int       `json:"leads"`
	Issues      int       `json:"issues"`
	// Stale is set when the latest refresh failed and older data is shown
	Stale   bool   `json:"stale"`
	Warning string `json:"warning,omitempty"`
}

type ViewResponse struct {
	*model.View
	Snapshot SnapshotInfo `json:"snapshot"`
}

type AgentsResponse struct {
	Agents   []string     `json:"agents"`
	Snapshot SnapshotInfo `json:"snapshot"`
}

// GetView handles GET /api/views/:role. Admins may request any view;
// clients only the client view; agents only their own agent view.
func (h *DashboardHandler) GetView(c *gin.Context) {
	role := model.Role(strings.ToLower(c.Param("role")))
	if !role.Valid() {
		writeError(c, fmt.Errorf("%w: unknown view %q", service.ErrInvalidArgument, c.Param("role")))
		return
	}

	req := service.ViewRequest{Role: role, Agent: c.Query("agent")}
	caller := middleware.GetRole(c)
	switch caller {
	case model.RoleAdmin:
	case model.RoleClient:
		if role != model.RoleClient {
			forbidden(c, "Clients may only view the client dashboard")
			return
		}
	case model.RoleAgent:
		own := middleware.GetAgent(c)
		if role != model.RoleAgent || (req.Agent != "" && req.Agent != own) {
			forbidden(c, "Agents may only view their own dashboard")
			return
		}
		req.Agent = own
	default:
		forbidden(c, "Insufficient permissions")
		return
	}

	if c.Query("spreadsheet") != "" && caller != model.RoleAdmin {
		forbidden(c, "Only admins may choose the spreadsheet")
		return
	}

	if v := c.Query("stage"); v != "" {
		stage, ok := model.ParseStage(v)
		if !ok {
			writeError(c, fmt.Errorf("%w: unknown stage %q", service.ErrInvalidArgument, v))
			return
		}
		req.Stage = &stage
	}

	opts, err := h.aggregateOptions(c)
	if err != nil {
		writeError(c, err)
		return
	}

	snap, info, ok := h.snapshot(c)
	if !ok {
		return
	}

	view, err := service.Compose(snap, req, opts)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ViewResponse{View: view, Snapshot: info})
}

// ListAgents handles GET /api/agents
func (h *DashboardHandler) ListAgents(c *gin.Context) {
	snap, info, ok := h.snapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, AgentsResponse{Agents: service.Agents(snap), Snapshot: info})
}

// Refresh handles POST /api/refresh, reloading the sheet immediately
func (h *DashboardHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	snap, err := h.snapshots.Refresh(ctx, c.Query("spreadsheet"))
	if err != nil {
		writeError(c, err)
		return
	}

	logger.Info(ctx, "manual refresh", "spreadsheet", snap.Spreadsheet, "leads", len(snap.Leads))
	c.JSON(http.StatusOK, gin.H{"snapshot": infoFor(snap, nil)})
}

// snapshot loads the requested snapshot. A failed refresh with earlier
// data available still succeeds, flagged stale with a warning.
func (h *DashboardHandler) snapshot(c *gin.Context) (*model.Snapshot, SnapshotInfo, bool) {
	snap, err := h.snapshots.Get(c.Request.Context(), c.Query("spreadsheet"))
	if err != nil && snap == nil {
		writeError(c, err)
		return nil, SnapshotInfo{}, false
	}
	if err != nil {
		logger.Warn(c.Request.Context(), "serving stale snapshot", "error", err)
	}
	return snap, infoFor(snap, err), true
}

func infoFor(snap *model.Snapshot, err error) SnapshotInfo {
	info := SnapshotInfo{
		Spreadsheet: snap.Spreadsheet,
		FetchedAt:   snap.FetchedAt,
		Leads:       len(snap.Leads),
		Issues:      snap.Issues,
	}
	if err != nil {
		_, msg := statusFor(err)
		info.Stale = true
		info.Warning = msg
	}
	return info
}

// aggregateOptions reads the follow-up window from ?from= and ?to=
// (YYYY-MM-DD in the dashboard timezone). Both default to today.
func (h *DashboardHandler) aggregateOptions(c *gin.Context) (service.AggregateOptions, error) {
	opts := service.AggregateOptions{
		Now:         h.now(),
		Location:    h.location,
		RecentLimit: h.recentLimit,
	}

	var err error
	opts.FollowUpFrom, opts.FollowUpTo, err = service.ParseFollowUpWindow(c.Query("from"), c.Query("to"), opts.Now, h.location)
	return opts, err
}
