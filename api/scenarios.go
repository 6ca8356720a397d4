/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the directory (and, for some,
	the request queue) with realistic data for demos. Each scenario is safe
	to load more than once: employees are upserted and requests that already
	exist are skipped.

AVAILABLE SCENARIOS:

	single-team:   one office, one of each role
	two-teams:     two teams with a supervisor each and a pending request
	               per team, to show supervisor scope in the approval queue

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load
	{"scenario_id": "two-teams"}

NOTE:

	Scenario routes are only mounted when Options.EnableScenarios is set
	(cmd/server -demo). They bypass the actor header.

SEE ALSO:
  - server.go: Options.EnableScenarios
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-team",
		Name:        "Single Team",
		Description: "One office with a system admin, an admin, a supervisor and an agent",
	},
	{
		ID:          "two-teams",
		Name:        "Two Teams",
		Description: "Two supervised teams with one pending request each",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Seed(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusNotFound, "Scenario not found", err)
			return
		}
		h.Logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

var errUnknownScenario = errors.New("unknown scenario")

// Seed loads the named scenario into the store.
func (h *Handler) Seed(ctx context.Context, id string) error {
	switch id {
	case "single-team":
		return h.seedEmployees(ctx, singleTeam())
	case "two-teams":
		return h.loadTwoTeamsScenario(ctx)
	default:
		return fmt.Errorf("%w: %s", errUnknownScenario, id)
	}
}

func singleTeam() []leave.Employee {
	return []leave.Employee{
		{ID: "sysadmin", Name: "System Administrator", Role: leave.RoleSystemAdmin, Office: "hq"},
		{ID: "admin", Name: "Office Admin", Role: leave.RoleAdmin, Office: "hq"},
		{ID: "supervisor", Name: "Team Supervisor", Role: leave.RoleSupervisor, Team: "support", Office: "hq"},
		{ID: "agent", Name: "Support Agent", Role: leave.RoleAgent, Team: "support", Office: "hq"},
	}
}

func (h *Handler) seedEmployees(ctx context.Context, employees []leave.Employee) error {
	for _, e := range employees {
		if err := h.Leave.Store.SaveEmployee(ctx, e); err != nil {
			return fmt.Errorf("failed to save employee %s: %w", e.ID, err)
		}
	}
	return nil
}

func (h *Handler) loadTwoTeamsScenario(ctx context.Context) error {
	employees := []leave.Employee{
		{ID: "admin", Name: "Office Admin", Role: leave.RoleAdmin, Office: "hq"},
		{ID: "sup-support", Name: "Support Supervisor", Role: leave.RoleSupervisor, Team: "support", Office: "hq"},
		{ID: "sup-sales", Name: "Sales Supervisor", Role: leave.RoleSupervisor, Team: "sales", Office: "hq"},
		{ID: "agent-support", Name: "Support Agent", Role: leave.RoleAgent, Team: "support", Office: "hq"},
		{ID: "agent-sales", Name: "Sales Agent", Role: leave.RoleAgent, Team: "sales", Office: "hq"},
	}
	if err := h.seedEmployees(ctx, employees); err != nil {
		return err
	}

	// Requests start next Monday so they are always in the future
	monday := nextMonday(leave.DateOf(time.Now()))
	requests := []struct {
		employee leave.Employee
		lt       leave.LeaveTypeID
		start    leave.Date
		end      leave.Date
		reason   string
	}{
		{employees[3], "casual", monday, monday.AddDays(1), "Family visit"},
		{employees[4], "annual", monday.AddDays(2), monday.AddDays(4), "Conference trip"},
	}
	for _, r := range requests {
		_, err := h.Leave.RequestLeave(ctx, r.employee, r.lt, r.start, r.end, r.reason)
		if err != nil && !errors.Is(err, leave.ErrOverlappingRequest) && !errors.Is(err, leave.ErrLeaveTypeNotFound) {
			return fmt.Errorf("failed to file request for %s: %w", r.employee.ID, err)
		}
	}
	return nil
}

func nextMonday(d leave.Date) leave.Date {
	offset := (int(time.Monday) - int(d.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return d.AddDays(offset)
}
