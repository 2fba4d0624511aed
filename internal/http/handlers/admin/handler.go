package admin

import "github.com/vendorledger/internal/provider"

// Handler 运营后台接口处理器入口
// 说明：调用方身份由网关签发的运营令牌确定，此处不做账号管理。
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
