package session

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/insurelane/surveyd/internal/apperror"
	"github.com/insurelane/surveyd/internal/dto"
	"github.com/insurelane/surveyd/internal/model"
	"github.com/insurelane/surveyd/internal/service"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
)

type SessionController struct {
	sessionSvc     service.SessionService
	recoverySvc    service.RecoveryService
	degradationSvc service.DegradationService
	errs           *apperror.Handler
}

func NewSessionController(
	sessionSvc service.SessionService,
	recoverySvc service.RecoveryService,
	degradationSvc service.DegradationService,
	errs *apperror.Handler,
) *SessionController {
	return &SessionController{
		sessionSvc:     sessionSvc,
		recoverySvc:    recoverySvc,
		degradationSvc: degradationSvc,
		errs:           errs,
	}
}

func (c *SessionController) RegisterRoutes(api *gin.RouterGroup) {
	surveys := api.Group("/surveys/:category")
	{
		surveys.POST("/sessions", c.GetOrCreateSession)

		sessions := surveys.Group("/sessions/:session_key")
		sessions.GET("/validity", c.CheckValidity)
		sessions.POST("/recover", c.RecoverSession)
		sessions.POST("/degradation", c.HandleDegradation)
		sessions.POST("/fallback", c.ImplementFallback)
	}

	sessions := api.Group("/sessions/:session_key")
	{
		sessions.POST("/extend", c.ExtendSession)
		sessions.GET("/expiry-warning", c.ExpiryWarning)
		sessions.GET("/recovery-info", c.GetRecoveryInfo)
		sessions.GET("/fallback-info", c.GetFallbackInfo)
		sessions.POST("/backup", c.CreateBackup)
	}

	api.POST("/backups/restore", c.RestoreBackup)
	api.POST("/maintenance/cleanup-sessions", c.CleanupSessions)
}

// GetOrCreateSession godoc
// @Summary Get or create the caller's survey session
// @Description Returns the caller's active session for the category, or creates one. Expired sessions are replaced, never returned.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param category path string true "Policy category slug"
// @Param body body dto.GetOrCreateSessionRequest true "Caller identity"
// @Success 200 {object} dto.SessionDTO
// @Failure 404 {object} dto.ErrorResponse "Category not found"
// @Router /surveys/{category}/sessions [post]
func (c *SessionController) GetOrCreateSession(ctx *gin.Context) {
	var req dto.GetOrCreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	session, err := c.sessionSvc.GetOrCreate(ctx.Param("category"), req.UserID, req.SessionKey)
	if err != nil {
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, c.toDTO(session))
}

// CheckValidity godoc
// @Summary Check whether a session is still usable
// @Description An unusable session comes back with recovery options rather than an error.
// @Tags Sessions
// @Produce json
// @Param category path string true "Policy category slug"
// @Param session_key path string true "Session key"
// @Success 200 {object} service.SessionValidity
// @Router /surveys/{category}/sessions/{session_key}/validity [get]
func (c *SessionController) CheckValidity(ctx *gin.Context) {
	validity, err := c.recoverySvc.CheckSessionValidity(ctx.Param("category"), ctx.Param("session_key"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	ctx.JSON(http.StatusOK, validity)
}

// RecoverSession godoc
// @Summary Recover an expired session's responses into a new session
// @Description The new session belongs to the user in the body, or stays anonymous when the body is empty.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param category path string true "Policy category slug"
// @Param session_key path string true "Old session key"
// @Param body body dto.RecoverSessionRequest false "Owner of the recovered session"
// @Success 200 {object} service.RecoverySummary
// @Failure 404 {object} apperror.ErrorResponse "Session not found or nothing to recover"
// @Router /surveys/{category}/sessions/{session_key}/recover [post]
func (c *SessionController) RecoverSession(ctx *gin.Context) {
	var req dto.RecoverSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	summary, err := c.recoverySvc.RecoverSessionData(ctx.Request.Context(), ctx.Param("category"), ctx.Param("session_key"), req.UserID)
	if err != nil {
		c.sessionError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, summary)
}

// HandleDegradation godoc
// @Summary Decide how to proceed with incomplete survey data
// @Tags Sessions
// @Accept json
// @Produce json
// @Param category path string true "Policy category slug"
// @Param session_key path string true "Session key"
// @Param body body dto.DegradationRequest false "Completion threshold override"
// @Success 200 {object} service.DegradationResult
// @Failure 404 {object} apperror.ErrorResponse "Session not found"
// @Router /surveys/{category}/sessions/{session_key}/degradation [post]
func (c *SessionController) HandleDegradation(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	var req dto.DegradationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		// An empty body means defaults; anything else malformed is rejected.
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	result := c.degradationSvc.HandleIncompleteSurveyData(ctx.Request.Context(), session, req.MinCompletionThreshold)
	ctx.JSON(http.StatusOK, result)
}

// ImplementFallback godoc
// @Summary Build fallback comparison criteria for a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param category path string true "Policy category slug"
// @Param session_key path string true "Session key"
// @Param body body dto.FallbackRequest false "Fallback type; defaults to basic"
// @Success 200 {object} service.FallbackResult
// @Failure 404 {object} apperror.ErrorResponse "Session not found"
// @Router /surveys/{category}/sessions/{session_key}/fallback [post]
func (c *SessionController) ImplementFallback(ctx *gin.Context) {
	session, ok := c.loadSession(ctx)
	if !ok {
		return
	}
	var req dto.FallbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	result := c.degradationSvc.ImplementFallbackComparison(ctx.Request.Context(), session, req.FallbackType)
	ctx.JSON(http.StatusOK, result)
}

// ExtendSession godoc
// @Summary Extend a session's expiry
// @Description Sets expiry to now plus the requested hours. The new expiry always counts from now.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param session_key path string true "Session key"
// @Param body body dto.ExtendSessionRequest true "Extension"
// @Success 200 {object} service.ExtendResult
// @Failure 404 {object} apperror.ErrorResponse "Session not found"
// @Router /sessions/{session_key}/extend [post]
func (c *SessionController) ExtendSession(ctx *gin.Context) {
	var req dto.ExtendSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	result, err := c.sessionSvc.Extend(ctx.Param("session_key"), req.Hours, req.Reason)
	if err != nil {
		c.sessionError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// ExpiryWarning godoc
// @Summary Check how urgently the session's expiry should be surfaced
// @Tags Sessions
// @Produce json
// @Param session_key path string true "Session key"
// @Success 200 {object} service.ExpiryWarning
// @Failure 404 {object} apperror.ErrorResponse "Session not found"
// @Router /sessions/{session_key}/expiry-warning [get]
func (c *SessionController) ExpiryWarning(ctx *gin.Context) {
	session, err := c.sessionSvc.Find(ctx.Param("session_key"))
	if err != nil {
		c.sessionError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, c.sessionSvc.CheckExpiryWarning(session))
}

// GetRecoveryInfo godoc
// @Summary Get the cached recovery summary for a session
// @Tags Sessions
// @Produce json
// @Param session_key path string true "Session key"
// @Success 200 {object} service.RecoverySummary
// @Success 204 "No recovery info"
// @Router /sessions/{session_key}/recovery-info [get]
func (c *SessionController) GetRecoveryInfo(ctx *gin.Context) {
	info, err := c.recoverySvc.GetRecoveryInfo(ctx.Request.Context(), ctx.Param("session_key"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	if info == nil {
		ctx.Status(http.StatusNoContent)
		return
	}
	ctx.JSON(http.StatusOK, info)
}

// GetFallbackInfo godoc
// @Summary Get the cached fallback notice for a session
// @Tags Sessions
// @Produce json
// @Param session_key path string true "Session key"
// @Success 200 {object} service.FallbackInfo
// @Success 204 "No fallback info"
// @Router /sessions/{session_key}/fallback-info [get]
func (c *SessionController) GetFallbackInfo(ctx *gin.Context) {
	info, err := c.degradationSvc.GetFallbackInfo(ctx.Request.Context(), ctx.Param("session_key"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	if info == nil {
		ctx.Status(http.StatusNoContent)
		return
	}
	ctx.JSON(http.StatusOK, info)
}

// CreateBackup godoc
// @Summary Snapshot a session and its responses into the cache
// @Tags Sessions
// @Produce json
// @Param session_key path string true "Session key"
// @Success 200 {object} service.SessionBackup
// @Failure 404 {object} apperror.ErrorResponse "Session not found"
// @Router /sessions/{session_key}/backup [post]
func (c *SessionController) CreateBackup(ctx *gin.Context) {
	backup, err := c.recoverySvc.CreateSessionBackup(ctx.Request.Context(), ctx.Param("session_key"))
	if err != nil {
		c.sessionError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, backup)
}

// RestoreBackup godoc
// @Summary Restore a cached backup as a new session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param body body dto.RestoreBackupRequest true "Backup key"
// @Success 200 {object} service.RestoreResult
// @Failure 404 {object} apperror.ErrorResponse "Backup not found or expired"
// @Router /backups/restore [post]
func (c *SessionController) RestoreBackup(ctx *gin.Context) {
	var req dto.RestoreBackupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	result, err := c.recoverySvc.RestoreFromBackup(ctx.Request.Context(), req.BackupKey)
	if err != nil {
		c.sessionError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// CleanupSessions godoc
// @Summary Expire stale anonymous sessions
// @Description Intended for an external scheduler; there is no background sweeper.
// @Tags Maintenance
// @Accept json
// @Produce json
// @Param body body dto.CleanupSessionsRequest false "Age cutoff in days; defaults to 7"
// @Success 200 {object} service.CleanupResult
// @Router /maintenance/cleanup-sessions [post]
func (c *SessionController) CleanupSessions(ctx *gin.Context) {
	req := dto.CleanupSessionsRequest{DaysOld: 7}
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}
	if req.DaysOld <= 0 {
		req.DaysOld = 7
	}

	result, err := c.sessionSvc.CleanupExpired(req.DaysOld)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (c *SessionController) toDTO(session *model.Session) dto.SessionDTO {
	var out dto.SessionDTO
	if err := copier.Copy(&out, session); err != nil {
		log.Error().Err(err).Str("sessionKey", session.SessionKey).Msg("Failed to map session to DTO")
	}
	out.Status = string(session.Status)
	return out
}

func (c *SessionController) loadSession(ctx *gin.Context) (*model.Session, bool) {
	session, err := c.sessionSvc.Get(ctx.Param("category"), ctx.Param("session_key"))
	if err != nil {
		c.sessionError(ctx, err)
		return nil, false
	}
	return session, true
}

func (c *SessionController) sessionError(ctx *gin.Context, err error) {
	var serr *apperror.SessionError
	if errors.As(err, &serr) {
		ctx.JSON(http.StatusNotFound, c.errs.HandleSession(err, ctx.Param("session_key")))
		return
	}
	ctx.JSON(http.StatusInternalServerError, c.errs.HandleSystem(err))
}
