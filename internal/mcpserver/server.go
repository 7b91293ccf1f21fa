package mcpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opendeepwiki/deepresearch/internal/service"
)

// NewMCPServer 注册威胁模型校验与指令预览工具
func NewMCPServer(threatModels *service.ThreatModelService) *server.MCPServer {
	s := server.NewMCPServer(
		"deepresearch MCP Server",
		"1.0",
		server.WithToolCapabilities(false),
	)
	validate := NewValidateTool(threatModels)
	s.AddTool(validate.Definition(), validate.Handle)
	preview := NewPreviewTool()
	s.AddTool(preview.Definition(), preview.Handle)
	return s
}

func NewMCPSSEServer(threatModels *service.ThreatModelService) *server.SSEServer {
	return server.NewSSEServer(NewMCPServer(threatModels), server.WithStaticBasePath("/mcp"))
}

// Adapt 将标准的 http.Handler 适配为 Gin 框架可用的处理函数。
func Adapt(fn func() http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		fn().ServeHTTP(c.Writer, c.Request)
	}
}
