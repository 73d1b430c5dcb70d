package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bgplgpro/bgplgpro/internal/database"
	"github.com/bgplgpro/bgplgpro/internal/service"
)

// ServerHandler 服务器清单处理器
type ServerHandler struct {
	queryService *service.QueryService
}

// NewServerHandler 创建服务器清单处理器
func NewServerHandler(queryService *service.QueryService) *ServerHandler {
	return &ServerHandler{
		queryService: queryService,
	}
}

// List 列出已配置的路由服务器
// @Summary 列出路由服务器清单
// @Description 返回全部已配置服务器（含停用项），不含登录凭据
// @Tags servers
// @Produce json
// @Success 200 {object} SuccessResponse "查询成功"
// @Router /api/v1/servers [get]
func (h *ServerHandler) List(c *gin.Context) {
	servers := h.queryService.Registry().List()
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "OK",
		Message: "查询成功",
		Data:    servers,
	})
}

// Health 健康检查
// @Summary 健康检查
// @Tags system
// @Produce json
// @Success 200 {object} gin.H "服务正常"
// @Router /api/v1/health [get]
func (h *ServerHandler) Health(c *gin.Context) {
	dbStatus := "ok"
	if err := database.Health(); err != nil {
		dbStatus = err.Error()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbStatus,
		"servers":  h.queryService.Registry().Len(),
	})
}
