package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mtgmarket/cardgate/pkg/catalog"
	"github.com/mtgmarket/cardgate/pkg/models"
)

const statsWindow = 24 * time.Hour

func (s *Server) search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		writeError(c, http.StatusBadRequest, "query parameter q is required")
		return
	}
	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(c, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}

	raw, err := s.cards.SearchCards(c.Request.Context(), q, page)
	if err != nil {
		s.fail(c, err)
		return
	}

	// Search results are returned as the provider's list object with ok
	// added alongside, so clients can read data/has_more/total_cards directly.
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "data": raw})
		return
	}
	obj["ok"] = json.RawMessage("true")
	c.JSON(http.StatusOK, obj)
}

func (s *Server) card(c *gin.Context) {
	raw, err := s.cards.CardByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	writeData(c, raw)
}

func (s *Server) prints(c *gin.Context) {
	raw, err := s.cards.Prints(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	writeData(c, raw)
}

func (s *Server) images(c *gin.Context) {
	uris, err := s.cards.Images(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "images": uris})
}

func (s *Server) prices(c *gin.Context) {
	p, err := s.cards.Prices(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "prices": p})
}

func (s *Server) named(query func(string) models.NameQuery) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := s.cards.ByName(c.Request.Context(), query(c.Param("name")))
		if err != nil {
			s.fail(c, err)
			return
		}
		writeData(c, raw)
	}
}

func (s *Server) stats(c *gin.Context) {
	out := gin.H{"cache": s.cards.CacheStats()}
	if s.ledger != nil {
		summary, err := s.ledger.Summary(c.Request.Context(), time.Now().Add(-statsWindow))
		if err != nil {
			s.fail(c, err)
			return
		}
		out["upstream"] = summary
	}
	writeData(c, out)
}

func writeData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg})
}

// fail maps a lookup error to a response. Provider 4xx answers (unknown card,
// bad query) pass through; anything else is a bad gateway.
func (s *Server) fail(c *gin.Context, err error) {
	var upstream *catalog.UpstreamError
	switch {
	case errors.Is(err, catalog.ErrInvalidArgument):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &upstream) && upstream.StatusCode >= 400 && upstream.StatusCode < 500:
		writeError(c, upstream.StatusCode, err.Error())
	default:
		s.logger.ErrorContext(c.Request.Context(), "card lookup failed",
			"path", c.Request.URL.Path,
			"request_id", c.GetString(requestIDKey),
			"error", err,
		)
		writeError(c, http.StatusBadGateway, err.Error())
	}
}
