package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/example/expense-workflow/internal/identity"
	"github.com/example/expense-workflow/internal/query"
	"github.com/example/expense-workflow/internal/report"
	"github.com/example/expense-workflow/internal/repository"
	"github.com/example/expense-workflow/internal/workflow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "caller_identity"

// Handlers maps HTTP requests onto the workflow engine and query service.
// All business semantics live below this layer; handlers only bind input,
// resolve the caller and translate the error taxonomy to status codes.
type Handlers struct {
	engine     *workflow.Engine
	queries    *query.Service
	users      *repository.UserRepository
	sessions   *SessionStore
	provider   identity.Provider
	exporter   *report.Exporter
	cookieName string
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewHandlers creates the HTTP handler set
func NewHandlers(
	engine *workflow.Engine,
	queries *query.Service,
	users *repository.UserRepository,
	sessions *SessionStore,
	provider identity.Provider,
	exporter *report.Exporter,
	cookieName string,
	sessionTTL time.Duration,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:     engine,
		queries:    queries,
		users:      users,
		sessions:   sessions,
		provider:   provider,
		exporter:   exporter,
		cookieName: cookieName,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createRequestBody struct {
	Title  string `json:"title"`
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

type updateRequestBody struct {
	Title  string `json:"title"`
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

type returnRequestBody struct {
	Comment string `json:"comment"`
}

// Login authenticates demo credentials and issues a session cookie
func (h *Handlers) Login(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := h.users.Authenticate(body.Email, body.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.sessions.Issue(user.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.SetCookie(h.cookieName, token, int(h.sessionTTL.Seconds()), "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// Logout revokes the current session
func (h *Handlers) Logout(c *gin.Context) {
	if token, err := c.Cookie(h.cookieName); err == nil {
		h.sessions.Revoke(token)
	}
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// RequireIdentity resolves the session cookie to a caller identity and
// aborts with 401 when there is none
func (h *Handlers) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(h.cookieName)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		caller, err := h.provider.Resolve(token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			} else {
				h.logger.Error("Failed to resolve identity", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		c.Set(identityKey, caller)
		c.Next()
	}
}

func callerFrom(c *gin.Context) identity.Identity {
	return c.MustGet(identityKey).(identity.Identity)
}

func requestIDFrom(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid request id", workflow.ErrNotFoundOrForbidden)
	}
	return id, nil
}

// Me returns the resolved caller identity
func (h *Handlers) Me(c *gin.Context) {
	caller := callerFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"id":   caller.UserID,
		"name": caller.Name,
		"role": caller.Role,
	})
}

// ListRequests returns the caller's own requests
func (h *Handlers) ListRequests(c *gin.Context) {
	summaries, err := h.queries.ListForApplicant(callerFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// CreateRequest drafts a new request owned by the caller
func (h *Handlers) CreateRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	request, err := h.engine.Create(callerFrom(c), body.Title, body.Amount, body.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

// GetRequest returns the caller's own request detail
func (h *Handlers) GetRequest(c *gin.Context) {
	id, err := requestIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	request, err := h.queries.GetDetailForApplicant(callerFrom(c).UserID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// UpdateRequest edits a RETURNED request owned by the caller
func (h *Handlers) UpdateRequest(c *gin.Context) {
	id, err := requestIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var body updateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	caller := callerFrom(c)
	if err := h.engine.Edit(caller, id, body.Title, body.Amount, body.Note); err != nil {
		h.respondError(c, err)
		return
	}

	request, err := h.queries.GetDetailForApplicant(caller.UserID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// SubmitRequest hands the caller's request to their approver
func (h *Handlers) SubmitRequest(c *gin.Context) {
	h.fireTransition(c, func(caller identity.Identity, id int64) error {
		return h.engine.Submit(caller, id)
	})
}

// ApproveRequest approves a request assigned to the caller
func (h *Handlers) ApproveRequest(c *gin.Context) {
	h.fireTransition(c, func(caller identity.Identity, id int64) error {
		return h.engine.Approve(caller, id)
	})
}

// RejectRequest rejects a request assigned to the caller
func (h *Handlers) RejectRequest(c *gin.Context) {
	h.fireTransition(c, func(caller identity.Identity, id int64) error {
		return h.engine.Reject(caller, id)
	})
}

// WithdrawRequest withdraws the caller's own request
func (h *Handlers) WithdrawRequest(c *gin.Context) {
	h.fireTransition(c, func(caller identity.Identity, id int64) error {
		return h.engine.Withdraw(caller, id)
	})
}

// ReturnRequest sends a request back to its applicant with a comment
func (h *Handlers) ReturnRequest(c *gin.Context) {
	id, err := requestIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Missing body or comment is treated as an empty comment
	var body returnRequestBody
	_ = c.ShouldBindJSON(&body)

	if err := h.engine.Return(callerFrom(c), id, body.Comment); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) fireTransition(c *gin.Context, fire func(identity.Identity, int64) error) {
	id, err := requestIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := fire(callerFrom(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Inbox returns the requests awaiting the caller's approval
func (h *Handlers) Inbox(c *gin.Context) {
	items, err := h.queries.GetInboxForApprover(callerFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// InboxDetail returns the detail of a request assigned to the caller
func (h *Handlers) InboxDetail(c *gin.Context) {
	id, err := requestIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	request, err := h.queries.GetDetailForApprover(callerFrom(c).UserID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// History returns the audit trail of the caller's own request
func (h *Handlers) History(c *gin.Context) {
	id, err := requestIDFrom(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	actions, err := h.queries.GetHistory(callerFrom(c).UserID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, actions)
}

// ExportRequests streams the caller's requests as an xlsx workbook
func (h *Handlers) ExportRequests(c *gin.Context) {
	caller := callerFrom(c)
	summaries, err := h.queries.ListForApplicant(caller.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	buf, err := h.exporter.RequestsWorkbook(summaries)
	if err != nil {
		h.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("requests-%d.xlsx", caller.UserID)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		buf.Bytes())
}

// respondError maps the error taxonomy onto HTTP status codes. Validation
// and policy failures carry their message; the uniform not-found-or-
// forbidden failure is always reported as a plain 404.
func (h *Handlers) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrPolicyViolation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrNotFoundOrForbidden):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, identity.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	default:
		h.logger.Error("Internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
