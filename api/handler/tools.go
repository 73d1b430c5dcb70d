package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ToolsHandler 查询工具描述处理器
type ToolsHandler struct{}

// NewToolsHandler 创建查询工具描述处理器
func NewToolsHandler() *ToolsHandler {
	return &ToolsHandler{}
}

// ToolDescriptor 查询工具描述
type ToolDescriptor struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Path        string            `json:"path"`
	Params      []ParamDescriptor `json:"params"`
}

// ParamDescriptor 参数描述
type ParamDescriptor struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

var tools = []ToolDescriptor{
	{
		Name:        "route",
		Description: "查询指定目的IP或前缀的BGP路由（show ip bgp <destination>）",
		Path:        "/api/v1/query/route",
		Params: []ParamDescriptor{
			{Name: "destination", Required: true, Description: "目的IPv4/IPv6地址或CIDR前缀，必须是公网地址"},
			{Name: "server", Required: false, Description: "路由服务器名称，缺省使用第一个启用的服务器"},
		},
	},
	{
		Name:        "summary",
		Description: "查询BGP邻居汇总（show ip bgp summary）",
		Path:        "/api/v1/query/summary",
		Params: []ParamDescriptor{
			{Name: "server", Required: false, Description: "路由服务器名称，缺省使用第一个启用的服务器"},
		},
	},
}

// List 列出可用的查询工具
// @Summary 列出查询工具及其参数
// @Tags tools
// @Produce json
// @Success 200 {object} SuccessResponse "查询成功"
// @Router /api/v1/tools [get]
func (h *ToolsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "OK",
		Message: "查询成功",
		Data:    tools,
	})
}
