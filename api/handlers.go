/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave coordinator via REST API. Handles HTTP request/response,
  JSON serialization and input validation, and delegates every decision to
  leave.Coordinator.

ENDPOINTS:
  Public:
    GET    /api/health                              Store reachability

  Reference data:
    GET    /api/leave-types                         Leave type catalog

  Employees:
    GET    /api/employees                           Directory listing
    GET    /api/employees/me                        The acting employee
    POST   /api/employees                           Register employee (admin)
    GET    /api/employees/{id}/balances             Remaining days per type
    GET    /api/employees/{id}/balances/{type}/entries  Ledger entries

  Leave requests:
    POST   /api/leave-requests                      Submit request
    POST   /api/leave-requests/preview              Advisory balance check
    GET    /api/leave-requests/mine                 Actor's own requests
    GET    /api/leave-requests/pending              Approval queue
    POST   /api/leave-requests/{id}/approve         Approve
    POST   /api/leave-requests/{id}/reject          Reject with reason

  Admin:
    POST   /api/admin/adjustments                   Credit days

ACTOR:
  Every route except health and scenarios runs behind ActorMiddleware, which
  resolves X-Employee-ID. Handlers pass that employee to the coordinator;
  permission checks happen there, not here.

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with a status from the error's
  leave.Code:
  - 400: validation
  - 403: unauthorized (actor lacks permission)
  - 404: not_found
  - 409: conflict (overlap, already decided)
  - 422: insufficient_balance
  - 500: anything unclassified

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - leave/coordinator.go: Operations behind every handler
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Leave  *leave.Coordinator
	Logger *zap.Logger

	validate *validator.Validate
}

// NewHandler creates a handler over the coordinator. The logger is optional
// and defaults to the global zap logger.
func NewHandler(c *leave.Coordinator, logger ...*zap.Logger) *Handler {
	log := zap.L().Named("api")
	if len(logger) > 0 && logger[0] != nil {
		log = logger[0]
	}
	return &Handler{
		Leave:    c,
		Logger:   log,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Leave.Store.(interface{ Ping(ctx context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Logger.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// ListLeaveTypes returns the catalog.
// GET /api/leave-types
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types := h.Leave.Catalog.List()
	dtos := make([]LeaveTypeDTO, len(types))
	for i, lt := range types {
		dtos[i] = toLeaveTypeDTO(lt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns the directory.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Leave.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMe returns the acting employee.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(actor))
}

// CreateEmployee registers or replaces an employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	emp, err := h.Leave.RegisterEmployee(r.Context(), actor, leave.Employee{
		ID:     leave.EmployeeID(req.ID),
		Name:   req.Name,
		Role:   leave.Role(req.Role),
		Team:   req.Team,
		Office: req.Office,
	})
	if err != nil {
		h.writeLeaveError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetBalances returns remaining days for every leave type.
// GET /api/employees/{id}/balances
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := leave.EmployeeID(chi.URLParam(r, "id"))

	views, err := h.Leave.Balances(r.Context(), actor, id)
	if err != nil {
		h.writeLeaveError(w, err)
		return
	}

	dtos := make([]BalanceDTO, len(views))
	for i, v := range views {
		dtos[i] = BalanceDTO{
			LeaveTypeID:   string(v.LeaveType.ID),
			LeaveTypeName: v.LeaveType.Name,
			Entitlement:   v.Entitlement,
			Remaining:     v.Remaining,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEntries returns the ledger entries behind one balance.
// GET /api/employees/{id}/balances/{type}/entries
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := leave.EmployeeID(chi.URLParam(r, "id"))
	lt := leave.LeaveTypeID(chi.URLParam(r, "type"))

	entries, err := h.Leave.History(r.Context(), actor, id, lt)
	if err != nil {
		h.writeLeaveError(w, err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEAVE REQUEST HANDLERS
// =============================================================================

// SubmitLeaveRequest files a pending request for the actor.
// POST /api/leave-requests
func (h *Handler) SubmitLeaveRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req SubmitLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, end, ok := parseRange(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	created, err := h.Leave.RequestLeave(r.Context(), actor, leave.LeaveTypeID(req.LeaveTypeID), start, end, req.Reason)
	if err != nil {
		h.writeLeaveError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(created))
}

// PreviewLeaveRequest reports whether a request would currently fit the
// actor's balance. Nothing is reserved.
// POST /api/leave-requests/preview
func (h *Handler) PreviewLeaveRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req PreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, end, ok := parseRange(w, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	quote, err := h.Leave.Preview(r.Context(), actor, leave.LeaveTypeID(req.LeaveTypeID), start, end)
	if err != nil {
		h.writeLeaveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteDTO{
		LeaveTypeID: string(quote.LeaveTypeID),
		Days:        quote.Days,
		Available:   quote.Available,
		Sufficient:  quote.Sufficient,
	})
}

// ListMyRequests returns the actor's own requests, oldest first.
// GET /api/leave-requests/mine
func (h *Handler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	reqs, err := h.Leave.MyRequests(r.Context(), actor)
	if err != nil {
		h.writeLeaveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(reqs))
}

// ListPendingRequests returns the requests the actor may decide.
// GET /api/leave-requests/pending
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	reqs, err := h.Leave.PendingForApprover(r.Context(), actor)
	if err != nil {
		h.writeLeaveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(reqs))
}

// ApproveRequest approves a pending request and debits the balance.
// POST /api/leave-requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := leave.RequestID(chi.URLParam(r, "id"))

	decided, err := h.Leave.DecideLeave(r.Context(), actor, id, leave.ActionApprove, "")
	if err != nil {
		h.writeLeaveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(decided))
}

// RejectRequest rejects a pending request.
// POST /api/leave-requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := leave.RequestID(chi.URLParam(r, "id"))
	var req RejectRequest
	if !h.decode(w, r, &req) {
		return
	}

	decided, err := h.Leave.DecideLeave(r.Context(), actor, id, leave.ActionReject, req.Reason)
	if err != nil {
		h.writeLeaveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(decided))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment credits days to an employee's balance.
// POST /api/admin/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	balance, err := h.Leave.AdjustBalance(r.Context(), actor,
		leave.EmployeeID(req.EmployeeID), leave.LeaveTypeID(req.LeaveTypeID), req.Days, req.Reason)
	if err != nil {
		h.writeLeaveError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AdjustmentResponse{
		EmployeeID:  req.EmployeeID,
		LeaveTypeID: req.LeaveTypeID,
		Balance:     balance,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (leave.Employee, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "no acting employee", Code: "unauthenticated"})
	}
	return actor, ok
}

// decode reads a JSON body into dst and validates it. On failure the
// response has been written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return false
		}
		fields := make([]FieldError, len(verrs))
		for i, fe := range verrs {
			fields[i] = FieldError{Field: fe.Field(), Rule: fe.Tag()}
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid " + fields[0].Field,
			Code:    string(leave.CodeValidation),
			Details: fields,
		})
		return false
	}
	return true
}

func parseRange(w http.ResponseWriter, startStr, endStr string) (leave.Date, leave.Date, bool) {
	start, err := leave.ParseDate(startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return leave.Date{}, leave.Date{}, false
	}
	end, err := leave.ParseDate(endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return leave.Date{}, leave.Date{}, false
	}
	return start, end, true
}

// StatusFor maps an engine error code to an HTTP status.
func StatusFor(code leave.Code) int {
	switch code {
	case leave.CodeValidation:
		return http.StatusBadRequest
	case leave.CodeUnauthorized:
		return http.StatusForbidden
	case leave.CodeNotFound:
		return http.StatusNotFound
	case leave.CodeConflict:
		return http.StatusConflict
	case leave.CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeLeaveError writes a coordinator error. Overlap and balance errors
// carry their detail; internal errors are logged and not echoed.
func (h *Handler) writeLeaveError(w http.ResponseWriter, err error) {
	code := leave.CodeOf(err)
	status := StatusFor(code)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.Error(err))
		writeJSON(w, status, ErrorResponse{Error: "internal error", Code: string(leave.CodeInternal)})
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: string(code)}

	var overlap *leave.OverlapError
	var short *leave.InsufficientBalanceError
	switch {
	case errors.As(err, &overlap):
		resp.Details = map[string]string{
			"existing_request_id": string(overlap.ExistingID),
			"existing_status":     string(overlap.ExistingStatus),
			"existing_start_date": overlap.ExistingRange.Start.String(),
			"existing_end_date":   overlap.ExistingRange.End.String(),
		}
	case errors.As(err, &short):
		resp.Details = map[string]string{
			"leave_type_id": string(short.LeaveTypeID),
			"available":     short.Available.String(),
			"requested":     short.Requested.String(),
			"shortfall":     short.Shortfall.String(),
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
