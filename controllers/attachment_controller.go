package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairshop-api/utils"
	"go.uber.org/zap"
)

// UploadAttachment handles POST /api/v1/orders/:id/attachments - stores an
// intake photo sent as the multipart field "image"
func (oc *OrderController) UploadAttachment(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "MISSING_FILE", "An image file is required in the \"image\" field", nil)
		return
	}

	attachment, err := oc.attachments.Upload(c.Request.Context(), c.Param("id"), actor, fileHeader)
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			utils.RespondError(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message, nil)
			return
		}
		status, _ := mapWorkflowError(err)
		if status != http.StatusInternalServerError {
			respondWorkflowError(c, err)
			return
		}
		oc.logger.Error("Failed to store attachment", zap.String("order_id", c.Param("id")), zap.Error(err))
		utils.RespondError(c, http.StatusBadGateway, "STORAGE_ERROR", "Failed to store the image", nil)
		return
	}
	utils.RespondSuccess(c, http.StatusCreated, attachment)
}

// ListAttachments handles GET /api/v1/orders/:id/attachments
func (oc *OrderController) ListAttachments(c *gin.Context) {
	attachments, err := oc.attachments.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	utils.RespondSuccess(c, http.StatusOK, attachments)
}
