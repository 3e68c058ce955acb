package routes

import (
	"net/http"

	"realty-server/models"
	"realty-server/utils"

	"github.com/kataras/iris/v12"
)

// AdminListInquiries returns every inquiry, optionally filtered by
// ?status=NEW|RESPONDED|CLOSED, for the support dashboard.
func AdminListInquiries(ctx iris.Context) {
	q := db.Preload("Property").Preload("User").Order("property_inquiries.created_at DESC")
	if status := ctx.URLParam("status"); status != "" {
		if !models.ValidInquiryStatus(status) {
			utils.CreateError(iris.StatusBadRequest, "Bad Request", "invalid inquiry status", ctx)
			return
		}
		q = q.Where("status = ?", status)
	}

	var results []models.PropertyInquiry
	if err := q.Find(&results).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"inquiries": results})
}

// AdminListAuditLogs returns the status-change audit trail, newest first.
func AdminListAuditLogs(ctx iris.Context) {
	limit := ctx.URLParamIntDefault("limit", 100)
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.AuditLog
	if err := db.Order("created_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.StatusCode(http.StatusOK)
	ctx.JSON(iris.Map{"auditLogs": logs})
}
