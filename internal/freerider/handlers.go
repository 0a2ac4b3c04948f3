package freerider

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/database"
	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/security"
)

// GroupWriter stores group membership fed in through the API
type GroupWriter interface {
	UpsertGroup(ctx context.Context, group analysis.GroupContext) error
}

// EvaluationWriter stores evaluations fed in through the API
type EvaluationWriter interface {
	InsertEvaluation(ctx context.Context, e *database.Evaluation) error
}

// Handler exposes a Service over HTTP
type Handler struct {
	service     *Service
	groups      GroupWriter
	evaluations EvaluationWriter
	security    *security.SecurityMiddleware
}

// NewHandler creates the HTTP handler set
func NewHandler(service *Service, groups GroupWriter, evaluations EvaluationWriter, sm *security.SecurityMiddleware) *Handler {
	return &Handler{service: service, groups: groups, evaluations: evaluations, security: sm}
}

// RegisterRoutes mounts the API under rg. Errors are reported through
// c.Error and rendered by the error-handling middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	groups := rg.Group("/groups/:id", h.security.ValidateParam("id"))
	groups.POST("/free-riders/run", h.runAnalysis)
	groups.GET("/free-riders", h.getReport)
	groups.PUT("", h.upsertGroup)

	rg.POST("/evaluations", h.createEvaluation)
}

func (h *Handler) runAnalysis(c *gin.Context) {
	report, err := h.service.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) getReport(c *gin.Context) {
	report, err := h.service.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type memberRequest struct {
	ID           string `json:"id" binding:"required"`
	Name         string `json:"name"`
	GitHubHandle string `json:"github_handle"`
}

type groupRequest struct {
	ProjectID     string          `json:"project_id" binding:"required"`
	RepositoryURL string          `json:"repository_url"`
	Members       []memberRequest `json:"members" binding:"dive"`
}

func (h *Handler) upsertGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidationError("invalid group body: " + err.Error()))
		return
	}

	if err := h.security.ValidateIdentifier("project_id", req.ProjectID); err != nil {
		_ = c.Error(err)
		return
	}

	group := analysis.GroupContext{
		GroupID:       c.Param("id"),
		ProjectID:     req.ProjectID,
		RepositoryURL: strings.TrimSpace(req.RepositoryURL),
		Members:       make([]analysis.Member, 0, len(req.Members)),
	}
	for _, m := range req.Members {
		if err := h.security.ValidateIdentifier("members.id", m.ID); err != nil {
			_ = c.Error(err)
			return
		}
		group.Members = append(group.Members, analysis.Member{
			ID:           m.ID,
			Name:         strings.TrimSpace(m.Name),
			GitHubHandle: strings.TrimSpace(m.GitHubHandle),
		})
	}

	if err := h.groups.UpsertGroup(c.Request.Context(), group); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, group)
}

type evaluationRequest struct {
	ProjectID   string   `json:"project_id" binding:"required"`
	StudentID   string   `json:"student_id" binding:"required"`
	EvaluatorID string   `json:"evaluator_id"`
	Score       *float64 `json:"score"`
}

func (h *Handler) createEvaluation(c *gin.Context) {
	var req evaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidationError("invalid evaluation body: " + err.Error()))
		return
	}

	for field, id := range map[string]string{"project_id": req.ProjectID, "student_id": req.StudentID} {
		if err := h.security.ValidateIdentifier(field, id); err != nil {
			_ = c.Error(err)
			return
		}
	}
	// Scores feed the composite directly, which assumes [0, 1].
	if req.Score != nil && (*req.Score < 0 || *req.Score > 1) {
		_ = c.Error(apperrors.NewValidationError("score must be between 0 and 1", "score"))
		return
	}

	evaluation := database.NewEvaluation(req.ProjectID, req.StudentID, req.EvaluatorID, req.Score)
	if err := h.evaluations.InsertEvaluation(c.Request.Context(), evaluation); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, evaluation)
}
