// Package mcpadapter exposes the analysis commands as MCP tools so an assistant can
// drive tracks and read their findings.
package mcpadapter

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/ports"
)

// Version is set at build time via ldflags.
var Version = "dev"

func NewServer(analysis ports.AnalysisService) *server.MCPServer {
	s := server.NewMCPServer(
		"contract-risk-analyzer",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	for _, tool := range newTools(analysis) {
		s.AddTool(tool.Definition(), tool.Handle)
	}
	return s
}

const instructions = `Contract risk analysis runs per document in tracks.
Call start_analysis with the contract text, then poll get_analysis.
Findings appear category by category during "sequencing"; deep analysis fills in
business impact and recommendations during "deep-analysis".
A "failed" track can be resumed with retry_analysis or, for an exhausted category,
continued without it via accept_partial. Configuration failures need a fix first.`
