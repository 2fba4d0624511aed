package shared

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// OperatorContextKey 运营身份在上下文中的键
const OperatorContextKey = "operator_id"

// GetOperator 读取已验签的运营身份
func GetOperator(c *gin.Context) string {
	value, exists := c.Get(OperatorContextKey)
	if !exists {
		return ""
	}
	operator, _ := value.(string)
	return strings.TrimSpace(operator)
}

// ParsePathUint 解析路径中的正整数参数
func ParsePathUint(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}

// 列表分页默认值与上限
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePagination 归一化分页参数
func NormalizePagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}
