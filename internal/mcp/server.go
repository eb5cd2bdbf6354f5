// Package mcp registers the bqgate warehouse tools on an MCP server. The
// tool set is fixed: execute-query, list-tables, describe-table. Every
// invocation passes the dataset access boundary before (or, for
// list-tables, after) the warehouse call.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/pkg/kit"

	"github.com/hazyhaar/bqgate/internal/boundary"
	"github.com/hazyhaar/bqgate/pkg/audit"
)

// Warehouse is the backend consumed by the tools. bq.Client implements it;
// tests substitute fakes.
type Warehouse interface {
	ExecuteQuery(ctx context.Context, query string) ([]map[string]any, error)
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, tableRef string) ([]map[string]any, error)
}

// NewServer creates an MCPServer with the three warehouse tools registered.
// The registry is complete when this returns; nothing registers later.
func NewServer(wh Warehouse, bound *boundary.Boundary, auditLog audit.Logger, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"bqgate",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	reg := &registrar{srv: srv, seen: make(map[string]bool)}
	registerExecuteQuery(reg, wh, bound, auditLog)
	registerListTables(reg, wh, bound, auditLog)
	registerDescribeTable(reg, wh, bound, auditLog)

	return srv
}

// registrar guards against duplicate tool names. Registration happens only
// during startup wiring, so a collision is a programming error.
type registrar struct {
	srv  *server.MCPServer
	seen map[string]bool
}

func (r *registrar) add(tool mcp.Tool, endpoint kit.Endpoint, decode func(mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	if r.seen[tool.Name] {
		panic(fmt.Sprintf("duplicate tool registration: %s", tool.Name))
	}
	r.seen[tool.Name] = true
	kit.RegisterMCPTool(r.srv, tool, endpoint, decode)
}

// --- execute-query ---

func registerExecuteQuery(reg *registrar, wh Warehouse, bound *boundary.Boundary, auditLog audit.Logger) {
	endpoint := envelopeMiddleware(executeQueryEndpoint(wh, bound))
	if auditLog != nil {
		endpoint = audit.Middleware(auditLog, "execute-query")(endpoint)
	}

	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]string{"type": "string", "description": "SELECT SQL query to execute using BigQuery dialect"},
		},
		"required": []string{"query"},
	})
	tool := mcp.NewToolWithRawSchema("execute-query", "Execute a SELECT query on the BigQuery database", schema)

	reg.add(tool, endpoint, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		return &kit.MCPDecodeResult{Request: &executeQueryReq{Query: stringArg(args, "query")}}, nil
	})
}

type executeQueryReq struct {
	Query string `json:"query"`
}

func executeQueryEndpoint(wh Warehouse, bound *boundary.Boundary) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		r := request.(*executeQueryReq)
		if strings.TrimSpace(r.Query) == "" {
			return nil, invalidInput("query is required")
		}
		if !boundary.ReadOnly(r.Query) {
			return nil, invalidInput("only read-only queries are allowed")
		}
		if err := bound.CheckQuery(r.Query); err != nil {
			return nil, err
		}
		rows, err := wh.ExecuteQuery(ctx, r.Query)
		if err != nil {
			return nil, err
		}
		return map[string]any{"rows": rows, "row_count": len(rows)}, nil
	}
}

// --- list-tables ---

func registerListTables(reg *registrar, wh Warehouse, bound *boundary.Boundary, auditLog audit.Logger) {
	endpoint := envelopeMiddleware(listTablesEndpoint(wh, bound))
	if auditLog != nil {
		endpoint = audit.Middleware(auditLog, "list-tables")(endpoint)
	}

	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	})
	tool := mcp.NewToolWithRawSchema("list-tables", "List all tables in the BigQuery database", schema)

	reg.add(tool, endpoint, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &listTablesReq{}}, nil
	})
}

type listTablesReq struct{}

func listTablesEndpoint(wh Warehouse, bound *boundary.Boundary) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		tables, err := wh.ListTables(ctx)
		if err != nil {
			return nil, err
		}
		// The boundary is applied after the backend call: tables in
		// non-allow-listed datasets never appear in the result.
		tables = bound.FilterTables(tables)
		return map[string]any{"tables": tables, "count": len(tables)}, nil
	}
}

// --- describe-table ---

func registerDescribeTable(reg *registrar, wh Warehouse, bound *boundary.Boundary, auditLog audit.Logger) {
	endpoint := envelopeMiddleware(describeTableEndpoint(wh, bound))
	if auditLog != nil {
		endpoint = audit.Middleware(auditLog, "describe-table")(endpoint)
	}

	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"table_name": map[string]string{"type": "string", "description": "Name of the table to describe (e.g. my_dataset.my_table)"},
		},
		"required": []string{"table_name"},
	})
	tool := mcp.NewToolWithRawSchema("describe-table", "Get the schema information for a specific table", schema)

	reg.add(tool, endpoint, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		return &kit.MCPDecodeResult{Request: &describeTableReq{Table: stringArg(args, "table_name")}}, nil
	})
}

type describeTableReq struct {
	Table string `json:"table_name"`
}

func describeTableEndpoint(wh Warehouse, bound *boundary.Boundary) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		r := request.(*describeTableReq)
		if strings.TrimSpace(r.Table) == "" {
			return nil, invalidInput("table_name is required")
		}
		if err := bound.CheckTableRef(r.Table); err != nil {
			return nil, err
		}
		schema, err := wh.DescribeTable(ctx, r.Table)
		if err != nil {
			return nil, err
		}
		return map[string]any{"table": r.Table, "schema": schema}, nil
	}
}

// --- helpers ---

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
