package mcpserver

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/riskoracle/internal/oracleclient"
	"github.com/mbd888/riskoracle/internal/risk"
	"github.com/mbd888/riskoracle/internal/validation"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client OracleAPI
	model  *risk.Model
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client OracleAPI) *Handlers {
	return &Handlers{client: client, model: risk.NewModel(risk.WithNoise(risk.NoNoise))}
}

// HandleGetRisk returns one validator's score.
func (h *Handlers) HandleGetRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("validator", "")
	if id == "" {
		return mcp.NewToolResultError("validator is required"), nil
	}

	r, err := h.client.GetRisk(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get risk: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Validator %s\n  Score: %d (%s)\n",
		r.ValidatorID, r.Score, h.model.Classify(r.Score))), nil
}

// HandleListRisks lists recorded scores.
func (h *Handlers) HandleListRisks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minScore := req.GetFloat("min_score", 0)

	list, err := h.client.ListRisks(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list risks: %v", err)), nil
	}

	return mcp.NewToolResultText(h.formatRiskList(list, minScore)), nil
}

// HandleOracleStatus describes the registry.
func (h *Handlers) HandleOracleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.client.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get oracle status: %v", err)), nil
	}
	return mcp.NewToolResultText(formatStatus(st)), nil
}

// HandleUpdateRisk records a score as the configured admin.
func (h *Handlers) HandleUpdateRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("validator", "")
	if !validation.IsValidValidatorID(id) {
		return mcp.NewToolResultError("validator must be a non-empty id of letters, digits, '_', '-', '.' or ':'"), nil
	}

	raw, ok := req.GetArguments()["score"].(float64)
	if !ok {
		return mcp.NewToolResultError("score is required"), nil
	}
	if raw != math.Trunc(raw) || raw < 0 || raw > validation.MaxScore {
		return mcp.NewToolResultError("score must be an integer between 0 and 255"), nil
	}
	score := uint8(raw)

	r, err := h.client.UpdateRisk(ctx, id, score)
	if err != nil {
		if oracleclient.IsUnauthorized(err) {
			return mcp.NewToolResultError("The oracle rejected the update: the configured key is not the oracle admin."), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update risk: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Recorded score %d (%s) for %s.",
		r.Score, h.model.Classify(r.Score), r.ValidatorID)), nil
}

// --- Formatting ---

func (h *Handlers) formatRiskList(list *oracleclient.RiskList, minScore float64) string {
	var sb strings.Builder
	n := 0
	for _, r := range list.Entries {
		if float64(r.Score) < minScore {
			continue
		}
		if n == 0 {
			sb.WriteString("Validator risk scores:\n")
		}
		fmt.Fprintf(&sb, "  %-24s %3d  %s\n", r.ValidatorID, r.Score, h.model.Classify(r.Score))
		n++
	}
	if n == 0 {
		return "No validators have a recorded risk score matching your criteria."
	}
	fmt.Fprintf(&sb, "\n%d validator(s)", n)
	if list.LastUpdate != nil {
		fmt.Fprintf(&sb, ", last update %s", list.LastUpdate.UTC().Format(time.RFC3339))
	}
	return sb.String()
}

func formatStatus(st *oracleclient.Status) string {
	var sb strings.Builder
	sb.WriteString("Risk oracle:\n")
	if !st.Initialized {
		sb.WriteString("  Admin: none (not initialized, all updates are rejected)\n")
	} else {
		fmt.Fprintf(&sb, "  Admin: %s\n", st.Admin)
	}
	fmt.Fprintf(&sb, "  Scored validators: %d\n", st.Count)
	if st.LastUpdate != nil {
		fmt.Fprintf(&sb, "  Last update: %s\n", st.LastUpdate.UTC().Format(time.RFC3339))
	} else {
		sb.WriteString("  Last update: never\n")
	}
	return sb.String()
}
