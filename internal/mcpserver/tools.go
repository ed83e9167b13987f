package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the risk oracle MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetRisk = mcp.NewTool("get_risk",
	mcp.WithDescription(
		"Get the risk score (0-255) recorded for a validator. "+
			"Validators that were never scored report 0, the same as a validator explicitly scored 0."),
	mcp.WithString("validator",
		mcp.Required(),
		mcp.Description("Validator id (e.g. 'validator_1')")),
)

var ToolListRisks = mcp.NewTool("list_risks",
	mcp.WithDescription(
		"List every validator that has a recorded risk score, with the time of the most recent update."),
	mcp.WithNumber("min_score",
		mcp.Description("Only include validators scored at or above this value")),
)

var ToolOracleStatus = mcp.NewTool("oracle_status",
	mcp.WithDescription(
		"Show whether the risk oracle has an admin, who it is, how many validators are scored and when the last update happened."),
)

var ToolUpdateRisk = mcp.NewTool("update_risk",
	mcp.WithDescription(
		"Record a new risk score for a validator. Only the oracle admin may do this; "+
			"the call is signed with the configured admin key and rejected for anyone else."),
	mcp.WithString("validator",
		mcp.Required(),
		mcp.Description("Validator id (e.g. 'validator_1')")),
	mcp.WithNumber("score",
		mcp.Required(),
		mcp.Description("Risk score between 0 and 255")),
)
