package admin

import (
	"strconv"

	handlershared "github.com/vendorledger/internal/http/handlers/shared"
	"github.com/vendorledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

func getOperator(c *gin.Context) (string, bool) {
	operator := handlershared.GetOperator(c)
	if operator == "" {
		respondErrorWithMsg(c, response.CodeUnauthorized, "operator identity missing", nil)
		return "", false
	}
	return operator, true
}

func parsePathUint(c *gin.Context, key string) (uint, bool) {
	return handlershared.ParsePathUint(c, key)
}

func pageQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return handlershared.NormalizePagination(page, pageSize)
}
