package survey

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/insurelane/surveyd/internal/apperror"
	"github.com/insurelane/surveyd/internal/dto"
	"github.com/insurelane/surveyd/internal/model"
	"github.com/insurelane/surveyd/internal/service"
)

type SurveyController struct {
	engine     service.SurveyEngine
	sessionSvc service.SessionService
	progress   service.ProgressService
	errs       *apperror.Handler
}

func NewSurveyController(
	engine service.SurveyEngine,
	sessionSvc service.SessionService,
	progress service.ProgressService,
	errs *apperror.Handler,
) *SurveyController {
	return &SurveyController{
		engine:     engine,
		sessionSvc: sessionSvc,
		progress:   progress,
		errs:       errs,
	}
}

func (c *SurveyController) RegisterRoutes(api *gin.RouterGroup) {
	surveys := api.Group("/surveys/:category")
	{
		surveys.GET("/sections", c.GetSections)
		surveys.GET("/questions/:question_id", c.GetQuestion)
		surveys.POST("/questions/:question_id/validate", c.ValidateResponse)
		surveys.POST("/questions/:question_id/conditional", c.CheckConditionalQuestions)

		sessions := surveys.Group("/sessions/:session_key")
		sessions.GET("/progress", c.GetProgress)
		sessions.GET("/summary", c.GetSummary)
		sessions.GET("/state", c.GetStateSnapshot)
		sessions.GET("/responses", c.GetResponses)
		sessions.POST("/responses", c.SaveResponse)
	}
}

// GetSections godoc
// @Summary List survey sections for a category
// @Description Returns the category's questionnaire grouped into ordered sections.
// @Tags Surveys
// @Produce json
// @Param category path string true "Policy category slug"
// @Success 200 {array} service.SurveySection
// @Failure 404 {object} dto.ErrorResponse "Category not found"
// @Router /surveys/{category}/sections [get]
func (c *SurveyController) GetSections(ctx *gin.Context) {
	sections, err := c.engine.Sections(ctx.Param("category"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, sections)
}

// GetQuestion godoc
// @Summary Get one survey question
// @Tags Surveys
// @Produce json
// @Param category path string true "Policy category slug"
// @Param question_id path int true "Question ID"
// @Success 200 {object} service.QuestionView
// @Failure 404 {object} dto.ErrorResponse "Question not found"
// @Router /surveys/{category}/questions/{question_id} [get]
func (c *SurveyController) GetQuestion(ctx *gin.Context) {
	questionID, ok := c.questionID(ctx)
	if !ok {
		return
	}
	question, err := c.engine.QuestionByID(ctx.Param("category"), questionID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	if question == nil {
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Question not found"})
		return
	}
	ctx.JSON(http.StatusOK, question)
}

// ValidateResponse godoc
// @Summary Validate an answer without saving it
// @Description Runs the question's type-specific validation and returns errors and the cleaned value.
// @Tags Surveys
// @Accept json
// @Produce json
// @Param category path string true "Policy category slug"
// @Param question_id path int true "Question ID"
// @Param body body dto.ValidateResponseRequest true "Raw answer"
// @Success 200 {object} service.ValidationResult
// @Router /surveys/{category}/questions/{question_id}/validate [post]
func (c *SurveyController) ValidateResponse(ctx *gin.Context) {
	questionID, ok := c.questionID(ctx)
	if !ok {
		return
	}
	var req dto.ValidateResponseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	result, err := c.engine.ValidateResponse(ctx.Param("category"), questionID, req.Response)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// CheckConditionalQuestions godoc
// @Summary List follow-up questions unlocked by an answer
// @Tags Surveys
// @Accept json
// @Produce json
// @Param category path string true "Policy category slug"
// @Param question_id path int true "Parent question ID"
// @Param body body dto.ConditionalQuestionsRequest true "Answer to the parent question"
// @Success 200 {object} dto.ConditionalQuestionsResponse
// @Router /surveys/{category}/questions/{question_id}/conditional [post]
func (c *SurveyController) CheckConditionalQuestions(ctx *gin.Context) {
	questionID, ok := c.questionID(ctx)
	if !ok {
		return
	}
	var req dto.ConditionalQuestionsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	questionIDs, err := c.engine.CheckConditionalQuestions(questionID, req.Response)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	ctx.JSON(http.StatusOK, dto.ConditionalQuestionsResponse{QuestionsToShow: questionIDs})
}

// GetProgress godoc
// @Summary Get session survey progress
// @Description Overall completion plus a per-section breakdown.
// @Tags Surveys
// @Produce json
// @Param category path string true "Policy category slug"
// @Param session_key path string true "Session key"
// @Success 200 {object} service.SessionProgress
// @Failure 404 {object} apperror.ErrorResponse "Session not found"
// @Router /surveys/{category}/sessions/{session_key}/progress [get]
func (c *SurveyController) GetProgress(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	progress, err := c.progress.Progress(session)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	ctx.JSON(http.StatusOK, progress)
}

// GetSummary godoc
// @Summary Get a survey summary for a session
// @Tags Surveys
// @Produce json
// @Param category path string true "Policy category slug"
// @Param session_key path string true "Session key"
// @Success 200 {object} service.SurveySummary
// @Failure 404 {object} apperror.ErrorResponse "Session not found"
// @Router /surveys/{category}/sessions/{session_key}/summary [get]
func (c *SurveyController) GetSummary(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	summary, err := c.engine.Summary(session)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	ctx.JSON(http.StatusOK, summary)
}

// GetStateSnapshot godoc
// @Summary Get the mirrored in-flight state for a session
// @Description Served from the cache mirror; 204 when nothing is mirrored.
// @Tags Surveys
// @Produce json
// @Param category path string true "Policy category slug"
// @Param session_key path string true "Session key"
// @Success 200 {object} sessionstate.Snapshot
// @Success 204 "No mirrored state"
// @Failure 404 {object} apperror.ErrorResponse "Session not found"
// @Router /surveys/{category}/sessions/{session_key}/state [get]
func (c *SurveyController) GetStateSnapshot(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	snapshot, err := c.engine.StateSnapshot(ctx.Request.Context(), session)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	if snapshot == nil {
		ctx.Status(http.StatusNoContent)
		return
	}
	ctx.JSON(http.StatusOK, snapshot)
}

// GetResponses godoc
// @Summary Get session responses grouped by section
// @Tags Surveys
// @Produce json
// @Param category path string true "Policy category slug"
// @Param session_key path string true "Session key"
// @Success 200 {object} map[string][]service.SectionResponse
// @Failure 404 {object} apperror.ErrorResponse "Session not found"
// @Router /surveys/{category}/sessions/{session_key}/responses [get]
func (c *SurveyController) GetResponses(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	responses, err := c.engine.SessionResponses(session)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	ctx.JSON(http.StatusOK, responses)
}

// SaveResponse godoc
// @Summary Validate and save one answer
// @Description Validation failures come back with HTTP 200 and success=false; the result carries the per-answer errors.
// @Tags Surveys
// @Accept json
// @Produce json
// @Param category path string true "Policy category slug"
// @Param session_key path string true "Session key"
// @Param body body dto.SaveResponseRequest true "Answer payload"
// @Success 200 {object} service.SaveResult
// @Failure 404 {object} apperror.ErrorResponse "Session not found"
// @Router /surveys/{category}/sessions/{session_key}/responses [post]
func (c *SurveyController) SaveResponse(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	var req dto.SaveResponseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	result, err := c.engine.SaveResponse(ctx.Request.Context(), session, req.QuestionID, req.Response, req.ConfidenceLevel)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleProcessing(err, "response_processing"))
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (c *SurveyController) questionID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("question_id"), 10, 32)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid question ID format"})
		return 0, false
	}
	return uint(id), true
}

func (c *SurveyController) loadSession(ctx *gin.Context) (*model.Session, bool) {
	s, err := c.sessionSvc.Get(ctx.Param("category"), ctx.Param("session_key"))
	if err != nil {
		var serr *apperror.SessionError
		if errors.As(err, &serr) {
			ctx.JSON(http.StatusNotFound, c.errs.HandleSession(err, ctx.Param("session_key")))
			return nil, false
		}
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return nil, false
	}
	return s, true
}
