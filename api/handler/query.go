package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bgplgpro/bgplgpro/internal/registry"
	"github.com/bgplgpro/bgplgpro/internal/service"
	"github.com/bgplgpro/bgplgpro/internal/validate"
	"github.com/bgplgpro/bgplgpro/pkg/logger"
	"github.com/bgplgpro/bgplgpro/pkg/session"
)

// QueryHandler 查询处理器
type QueryHandler struct {
	queryService *service.QueryService
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(queryService *service.QueryService) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
	}
}

// QueryResponse 查询响应
type QueryResponse struct {
	QueryID    string `json:"query_id"`
	Server     string `json:"server"`
	Command    string `json:"command"`
	Output     string `json:"output"`
	DurationMS int64  `json:"duration_ms"`
}

// RouteLookup 查询BGP路由
// @Summary 查询指定目的地址的BGP路由
// @Description 连接路由服务器执行 show ip bgp 命令并返回原始输出
// @Tags query
// @Produce json
// @Param destination query string true "目的IP或CIDR前缀"
// @Param server query string false "服务器名称，缺省为第一个启用的服务器"
// @Success 200 {object} QueryResponse "查询成功"
// @Failure 400 {object} ErrorResponse "目的地址无效"
// @Failure 404 {object} ErrorResponse "服务器不存在"
// @Router /api/v1/query/route [get]
func (h *QueryHandler) RouteLookup(c *gin.Context) {
	destination := c.Query("destination")
	if destination == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_PARAMS",
			Message: "缺少destination参数",
		})
		return
	}
	serverName := c.Query("server")

	result, err := h.queryService.LookupRoute(c.Request.Context(), serverName, destination)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQueryResponse(result))
}

// Summary 查询BGP邻居汇总
// @Summary 查询BGP邻居汇总
// @Description 连接路由服务器执行 show ip bgp summary 并返回原始输出
// @Tags query
// @Produce json
// @Param server query string false "服务器名称，缺省为第一个启用的服务器"
// @Success 200 {object} QueryResponse "查询成功"
// @Router /api/v1/query/summary [get]
func (h *QueryHandler) Summary(c *gin.Context) {
	serverName := c.Query("server")

	result, err := h.queryService.Summary(c.Request.Context(), serverName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQueryResponse(result))
}

// History 查询历史记录
// @Summary 查询最近的历史记录
// @Tags query
// @Produce json
// @Param limit query int false "返回条数，默认50"
// @Success 200 {object} SuccessResponse "查询成功"
// @Router /api/v1/query/history [get]
func (h *QueryHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, err := h.queryService.History(c.Request.Context(), limit)
	if err != nil {
		logger.Error("Failed to load query history", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "HISTORY_FAILED",
			Message: "查询历史记录失败: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "OK",
		Message: "查询成功",
		Data:    records,
	})
}

func toQueryResponse(result *service.QueryResult) QueryResponse {
	return QueryResponse{
		QueryID:    result.QueryID,
		Server:     result.Server,
		Command:    result.Command,
		Output:     result.Output,
		DurationMS: result.Duration.Milliseconds(),
	}
}

// writeError 按错误类别映射HTTP状态码
func (h *QueryHandler) writeError(c *gin.Context, err error) {
	var verr *validate.Error
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_DESTINATION",
			Message: "目的地址无效: " + verr.Detail,
		})
		return
	}

	switch {
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "SERVER_NOT_FOUND",
			Message: "服务器不存在: " + err.Error(),
		})
		return
	case errors.Is(err, registry.ErrDisabled):
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "SERVER_DISABLED",
			Message: "服务器已停用: " + err.Error(),
		})
		return
	case errors.Is(err, registry.ErrEmpty):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "NO_SERVERS",
			Message: "没有可用的路由服务器",
		})
		return
	}

	if kind, ok := session.KindOf(err); ok {
		switch kind {
		case session.KindConnectTimeout, session.KindLoginPromptTimeout, session.KindResponseTimeout:
			c.JSON(http.StatusGatewayTimeout, ErrorResponse{
				Code:    "UPSTREAM_TIMEOUT",
				Message: "路由服务器响应超时: " + err.Error(),
			})
		default:
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Code:    "UPSTREAM_ERROR",
				Message: "路由服务器连接失败: " + err.Error(),
			})
		}
		return
	}

	logger.Error("Query failed with unexpected error", "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    "QUERY_FAILED",
		Message: "查询失败: " + err.Error(),
	})
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
