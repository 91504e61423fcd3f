package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/ports"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/usecase"
)

type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

func newTools(analysis ports.AnalysisService) []tool {
	return []tool{
		&startAnalysisTool{analysis: analysis},
		&setForegroundTool{analysis: analysis},
		&retryAnalysisTool{analysis: analysis},
		&acceptPartialTool{analysis: analysis},
		&getAnalysisTool{analysis: analysis},
		&listAnalysesTool{analysis: analysis},
	}
}

func documentIDParam() mcp.ToolOption {
	return mcp.WithString("document_id",
		mcp.Required(),
		mcp.Description("Stable identifier of the contract document."),
	)
}

type startAnalysisTool struct {
	analysis ports.AnalysisService
}

func (t *startAnalysisTool) Definition() mcp.Tool {
	return mcp.NewTool("start_analysis",
		mcp.WithDescription("Start or resume the risk analysis of a contract. Returns immediately; poll get_analysis for progress."),
		documentIDParam(),
		mcp.WithString("text",
			mcp.Description("Full contract text. May be omitted when resuming a persisted analysis."),
		),
		mcp.WithArray("known_risks",
			mcp.Description("Risks already identified elsewhere; near-duplicates are not reported again."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

func (t *startAnalysisTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	track, err := t.analysis.StartAnalysis(ctx, domain.StartRequest{
		DocumentID: documentID,
		Text:       req.GetString("text", ""),
		KnownRisks: req.GetStringSlice("known_risks", nil),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return trackResult(track)
}

type setForegroundTool struct {
	analysis ports.AnalysisService
}

func (t *setForegroundTool) Definition() mcp.Tool {
	return mcp.NewTool("set_foreground",
		mcp.WithDescription("Display a document. The previously displayed analysis keeps running in the background."),
		documentIDParam(),
	)
}

func (t *setForegroundTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	track, err := t.analysis.SetForeground(ctx, documentID)
	if err != nil {
		return errorResult(err), nil
	}
	if track == nil {
		return mcp.NewToolResultText(fmt.Sprintf("Nothing is known about %s yet; start_analysis to begin.", documentID)), nil
	}
	return trackResult(*track)
}

type retryAnalysisTool struct {
	analysis ports.AnalysisService
}

func (t *retryAnalysisTool) Definition() mcp.Tool {
	return mcp.NewTool("retry_analysis",
		mcp.WithDescription("Resume a failed or interrupted analysis from the step that failed."),
		documentIDParam(),
	)
}

func (t *retryAnalysisTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	track, err := t.analysis.RetryFromFailure(ctx, documentID)
	if err != nil {
		return errorResult(err), nil
	}
	return trackResult(track)
}

type acceptPartialTool struct {
	analysis ports.AnalysisService
}

func (t *acceptPartialTool) Definition() mcp.Tool {
	return mcp.NewTool("accept_partial",
		mcp.WithDescription("Skip the category that exhausted its retries and continue with the rest."),
		documentIDParam(),
	)
}

func (t *acceptPartialTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	track, err := t.analysis.AcceptPartial(ctx, documentID)
	if err != nil {
		return errorResult(err), nil
	}
	return trackResult(track)
}

type getAnalysisTool struct {
	analysis ports.AnalysisService
}

func (t *getAnalysisTool) Definition() mcp.Tool {
	return mcp.NewTool("get_analysis",
		mcp.WithDescription("Read the current state and findings of an analysis."),
		documentIDParam(),
	)
}

func (t *getAnalysisTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	track, err := t.analysis.Get(ctx, documentID)
	if err != nil {
		return errorResult(err), nil
	}
	return trackResult(track)
}

type listAnalysesTool struct {
	analysis ports.AnalysisService
}

func (t *listAnalysesTool) Definition() mcp.Tool {
	return mcp.NewTool("list_analyses",
		mcp.WithDescription("List analyses currently held in memory with their progress."),
	)
}

func (t *listAnalysesTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type row struct {
		DocumentID         string       `json:"document_id"`
		Role               domain.Role  `json:"role"`
		Phase              domain.Phase `json:"phase"`
		CategoryCursor     int          `json:"category_cursor"`
		CategoryTotal      int          `json:"category_total"`
		DeepAnalysisCursor int          `json:"deep_analysis_cursor"`
		Findings           int          `json:"findings"`
	}
	tracks := t.analysis.List()
	rows := make([]row, 0, len(tracks))
	for _, track := range tracks {
		rows = append(rows, row{
			DocumentID:         track.DocumentID,
			Role:               track.Role,
			Phase:              track.Phase,
			CategoryCursor:     track.CategoryCursor,
			CategoryTotal:      track.CategoryTotal,
			DeepAnalysisCursor: track.DeepAnalysisCursor,
			Findings:           len(track.Findings),
		})
	}
	return jsonResult(rows)
}

func trackResult(track domain.Track) (*mcp.CallToolResult, error) {
	return jsonResult(track)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func errorResult(err error) *mcp.CallToolResult {
	if usecase.IsUserFixable(err) {
		return mcp.NewToolResultError("configuration problem, fix it before retrying: " + err.Error())
	}
	return mcp.NewToolResultError(err.Error())
}
