package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairshop-api/middleware"
	"github.com/kendall-kelly/repairshop-api/utils"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"go.uber.org/zap"
)

// mapWorkflowError resolves an operation error to status and code.
func mapWorkflowError(err error) (int, string) {
	switch {
	case errors.Is(err, workflow.ErrPhaseLocked):
		return http.StatusConflict, "PHASE_LOCKED"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, workflow.ErrAlreadyLastPhase):
		return http.StatusConflict, "ALREADY_LAST_PHASE"
	case errors.Is(err, workflow.ErrAlreadyFirstPhase):
		return http.StatusConflict, "ALREADY_FIRST_PHASE"
	case errors.Is(err, workflow.ErrMissingReason):
		return http.StatusBadRequest, "MISSING_REASON"
	case errors.Is(err, workflow.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, workflow.ErrPersistence):
		return http.StatusBadGateway, "PERSISTENCE_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondWorkflowError writes err in the error envelope. Unexpected errors
// are logged and their text is not exposed.
func respondWorkflowError(c *gin.Context, err error) {
	status, code := mapWorkflowError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		middleware.GetLogger(c).Error("Order operation failed", zap.String("code", code), zap.Error(err))
		if status == http.StatusInternalServerError {
			message = "An unexpected error occurred"
		} else {
			message = "The order could not be saved, please retry"
		}
	}
	utils.RespondError(c, status, code, capitalize(message), nil)
}

// respondBindingError reports a malformed request body.
func respondBindingError(c *gin.Context, err error) {
	details := utils.ValidationDetails(err)
	if details == nil {
		utils.RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
		return
	}
	utils.RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", details)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// actorID returns the registered user behind the request, or writes 401.
func actorID(c *gin.Context) (string, bool) {
	actor, err := middleware.GetActor(c)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information", nil)
		return "", false
	}
	return actor.ID, true
}
