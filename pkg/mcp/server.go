// Package mcp exposes card lookups as Model Context Protocol tools over a
// line-delimited JSON-RPC stream (usually stdio).
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mtgmarket/cardgate/pkg/models"
)

// Cards is the lookup surface exposed as tools.
type Cards interface {
	SearchCards(ctx context.Context, query string, page int) (json.RawMessage, error)
	CardByID(ctx context.Context, id string) (json.RawMessage, error)
	Prints(ctx context.Context, id string) (json.RawMessage, error)
	ByName(ctx context.Context, q models.NameQuery) (json.RawMessage, error)
	Images(ctx context.Context, id string) (models.ImageURIs, error)
	Prices(ctx context.Context, id string) (models.Prices, error)
	CacheStats() models.CacheStats
}

// Summarizer reports upstream call statistics.
type Summarizer interface {
	Summary(ctx context.Context, since time.Time) ([]models.EndpointSummary, error)
}

// Server answers MCP requests.
type Server struct {
	cards   Cards
	ledger  Summarizer
	logger  *slog.Logger
	version string
}

// New creates a Server. ledger may be nil.
func New(cards Cards, ledger Summarizer, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cards:   cards,
		ledger:  ledger,
		logger:  logger,
		version: version,
	}
}

// Run reads requests from r line by line and writes responses to w. It
// returns when r is exhausted or ctx is done.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, Response{
				JSONRPC: jsonRPCVersion,
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	// Notifications never get a reply, whatever the method.
	if len(req.ID) == 0 {
		return nil
	}
	switch req.Method {
	case "initialize":
		return s.reply(req, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "cardgate", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "tools/list":
		return s.reply(req, ToolsListResult{Tools: allTools})
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.fail(req, CodeInvalidParams, "invalid params")
		}
		return s.reply(req, s.callTool(ctx, params))
	default:
		return s.fail(req, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) callTool(ctx context.Context, params ToolCallParams) ToolCallResult {
	handler, ok := toolHandlers[params.Name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool: %s", params.Name))
	}
	result := handler(ctx, s, params.Arguments)
	if result.IsError {
		s.logger.WarnContext(ctx, "mcp tool failed", "tool", params.Name, "result", result.Content[0].Text)
	}
	return result
}

func (s *Server) reply(req *Request, result any) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result}
}

func (s *Server) fail(req *Request, code int, msg string) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Error: &RPCError{Code: code, Message: msg}}
}

func (s *Server) write(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp: marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("mcp: write response", "error", err)
	}
}
