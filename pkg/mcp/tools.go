package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mtgmarket/cardgate/pkg/models"
)

type searchArgs struct {
	Query string `json:"query"`
	Page  int    `json:"page"`
}

type idArgs struct {
	ID string `json:"id"`
}

type nameArgs struct {
	Name  string `json:"name"`
	Fuzzy bool   `json:"fuzzy"`
}

type statsArgs struct {
	Hours int `json:"hours"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"card_search":    handleSearch,
	"card_get":       handleCard,
	"card_prints":    handlePrints,
	"card_by_name":   handleByName,
	"card_images":    handleImages,
	"card_prices":    handlePrices,
	"cardgate_stats": handleStats,
}

func object(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

var idSchema = object([]string{"id"}, map[string]any{"id": prop("string", "Catalog card id")})

var allTools = []ToolDefinition{
	{
		Name:        "card_search",
		Description: "Search the card catalog with a catalog query string.",
		InputSchema: object([]string{"query"}, map[string]any{
			"query": prop("string", "Catalog search query, e.g. t:goblin c:r"),
			"page":  prop("integer", "Result page, starting at 1 (optional)"),
		}),
	},
	{
		Name:        "card_get",
		Description: "Fetch a single card by id.",
		InputSchema: idSchema,
	},
	{
		Name:        "card_prints",
		Description: "List every printing of a card.",
		InputSchema: idSchema,
	},
	{
		Name:        "card_by_name",
		Description: "Look a card up by exact name, or by fuzzy name when fuzzy is true.",
		InputSchema: object([]string{"name"}, map[string]any{
			"name":  prop("string", "Card name"),
			"fuzzy": prop("boolean", "Use fuzzy matching (optional)"),
		}),
	},
	{
		Name:        "card_images",
		Description: "Show a card's image URIs.",
		InputSchema: idSchema,
	},
	{
		Name:        "card_prices",
		Description: "Show a card's current prices.",
		InputSchema: idSchema,
	},
	{
		Name:        "cardgate_stats",
		Description: "Show cache statistics and, when the ledger is enabled, upstream calls per endpoint.",
		InputSchema: object(nil, map[string]any{
			"hours": prop("integer", "Ledger look-back window in hours (optional, default 24)"),
		}),
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// jsonResult renders a lookup result, or its error, as a tool result.
func jsonResult(v any, err error) ToolCallResult {
	if err != nil {
		return errorResult("Lookup failed: " + err.Error())
	}
	text, err := formatJSON(v)
	if err != nil {
		return errorResult("Error encoding result: " + err.Error())
	}
	return textResult(text)
}

func handleSearch(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args searchArgs
	if err := decodeArgs(raw, &args); err != nil || args.Query == "" {
		return errorResult("query is required")
	}
	if args.Page < 1 {
		args.Page = 1
	}
	return jsonResult(s.cards.SearchCards(ctx, args.Query, args.Page))
}

// byID adapts a lookup keyed by card id into a tool handler.
func byID[T any](lookup func(s *Server) func(context.Context, string) (T, error)) toolHandler {
	return func(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
		var args idArgs
		if err := decodeArgs(raw, &args); err != nil || args.ID == "" {
			return errorResult("id is required")
		}
		return jsonResult(lookup(s)(ctx, args.ID))
	}
}

var (
	handleCard   = byID(func(s *Server) func(context.Context, string) (json.RawMessage, error) { return s.cards.CardByID })
	handlePrints = byID(func(s *Server) func(context.Context, string) (json.RawMessage, error) { return s.cards.Prints })
	handleImages = byID(func(s *Server) func(context.Context, string) (models.ImageURIs, error) { return s.cards.Images })
	handlePrices = byID(func(s *Server) func(context.Context, string) (models.Prices, error) { return s.cards.Prices })
)

func handleByName(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args nameArgs
	if err := decodeArgs(raw, &args); err != nil || args.Name == "" {
		return errorResult("name is required")
	}
	q := models.NameQuery{Exact: args.Name}
	if args.Fuzzy {
		q = models.NameQuery{Fuzzy: args.Name}
	}
	return jsonResult(s.cards.ByName(ctx, q))
}

func handleStats(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args statsArgs
	_ = decodeArgs(raw, &args)
	if args.Hours <= 0 {
		args.Hours = 24
	}

	text := formatCacheStats(s.cards.CacheStats())
	if s.ledger == nil {
		return textResult(text + "\nUpstream ledger is not enabled.\n")
	}
	rows, err := s.ledger.Summary(ctx, time.Now().Add(-time.Duration(args.Hours)*time.Hour))
	if err != nil {
		return errorResult("Error fetching upstream stats: " + err.Error())
	}
	return textResult(text + "\n" + formatEndpointSummary(rows))
}
