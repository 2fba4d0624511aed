package admin

import (
	"strings"
	"time"

	"github.com/vendorledger/internal/http/response"
	"github.com/vendorledger/internal/service"

	"github.com/gin-gonic/gin"
)

// GetLedgerReport 租户账本报表
func (h *Handler) GetLedgerReport(c *gin.Context) {
	input := service.ReportQueryInput{
		TenantID:     strings.TrimSpace(c.Query("tenant_id")),
		Currency:     strings.TrimSpace(c.Query("currency")),
		Range:        strings.TrimSpace(c.Query("range")),
		Timezone:     strings.TrimSpace(c.Query("tz")),
		ForceRefresh: c.Query("refresh") == "1" || strings.EqualFold(c.Query("refresh"), "true"),
	}
	from, ok := parseReportTime(c, "from")
	if !ok {
		return
	}
	to, ok := parseReportTime(c, "to")
	if !ok {
		return
	}
	input.From, input.To = from, to

	report, err := h.ReportService.GetLedgerReport(c.Request.Context(), input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, report)
}

func parseReportTime(c *gin.Context, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, key+" must be RFC3339", err)
		return nil, false
	}
	return &parsed, true
}
