// Package cards is the card lookup surface used by the rest of the
// marketplace. Every operation goes through the cache before reaching the
// catalog.
package cards

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtgmarket/cardgate/pkg/cache"
	"github.com/mtgmarket/cardgate/pkg/models"
)

// Catalog is the upstream card catalog.
type Catalog interface {
	Search(ctx context.Context, query string, page int) (json.RawMessage, error)
	CardByID(ctx context.Context, id string) (json.RawMessage, error)
	Prints(ctx context.Context, id string) (json.RawMessage, error)
	Named(ctx context.Context, q models.NameQuery) (json.RawMessage, error)
}

// TTLPolicy sets how long each operation stays cached.
type TTLPolicy struct {
	Search time.Duration
	Card   time.Duration
	Prints time.Duration
	Named  time.Duration
}

// DefaultTTLPolicy caches search results briefly since result sets and prices
// drift; card identity and printings barely change.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Search: 10 * time.Minute,
		Card:   time.Hour,
		Prints: time.Hour,
		Named:  time.Hour,
	}
}

// Service serves card lookups from the cache, falling back to the catalog.
type Service struct {
	catalog Catalog
	cache   *cache.Cache
	ttl     TTLPolicy
}

// NewService creates a Service.
func NewService(catalog Catalog, c *cache.Cache, ttl TTLPolicy) *Service {
	return &Service{catalog: catalog, cache: c, ttl: ttl}
}

// SearchKey, CardKey, PrintsKey and NameKey build the cache keys for each
// operation.
func SearchKey(query string, page int) string {
	return "search:" + query + ":" + strconv.Itoa(normalizePage(page))
}

func CardKey(id string) string   { return "card:" + id }
func PrintsKey(id string) string { return "prints:" + id }

func NameKey(q models.NameQuery) string {
	if q.Exact != "" {
		return "name:exact:" + q.Exact
	}
	return "name:fuzzy:" + q.Fuzzy
}

func normalizePage(page int) int {
	return max(page, 1)
}

// fetch returns the cached payload for key, producing it on a miss. Callers
// get their own copy; the cached bytes are shared.
func (s *Service) fetch(ctx context.Context, key string, ttl time.Duration, produce func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	raw, err := cache.Fetch(ctx, s.cache, key, ttl, produce)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(raw), nil
}

// SearchCards runs a catalog search.
func (s *Service) SearchCards(ctx context.Context, query string, page int) (json.RawMessage, error) {
	page = normalizePage(page)
	return s.fetch(ctx, SearchKey(query, page), s.ttl.Search, func(ctx context.Context) (json.RawMessage, error) {
		return s.catalog.Search(ctx, query, page)
	})
}

// CardByID returns a single card.
func (s *Service) CardByID(ctx context.Context, id string) (json.RawMessage, error) {
	return s.fetch(ctx, CardKey(id), s.ttl.Card, func(ctx context.Context) (json.RawMessage, error) {
		return s.catalog.CardByID(ctx, id)
	})
}

// Prints returns every printing of a card.
func (s *Service) Prints(ctx context.Context, id string) (json.RawMessage, error) {
	return s.fetch(ctx, PrintsKey(id), s.ttl.Prints, func(ctx context.Context) (json.RawMessage, error) {
		return s.catalog.Prints(ctx, id)
	})
}

// ByName looks a card up by exact or fuzzy name.
func (s *Service) ByName(ctx context.Context, q models.NameQuery) (json.RawMessage, error) {
	return s.fetch(ctx, NameKey(q), s.ttl.Named, func(ctx context.Context) (json.RawMessage, error) {
		return s.catalog.Named(ctx, q)
	})
}

// card returns the shared cached card payload; it is only decoded, never
// handed out.
func (s *Service) card(ctx context.Context, id string) (json.RawMessage, error) {
	return cache.Fetch(ctx, s.cache, CardKey(id), s.ttl.Card, func(ctx context.Context) (json.RawMessage, error) {
		return s.catalog.CardByID(ctx, id)
	})
}

type cardFace struct {
	ImageURIs models.ImageURIs `json:"image_uris"`
}

type cardImages struct {
	ImageURIs models.ImageURIs `json:"image_uris"`
	CardFaces []cardFace       `json:"card_faces"`
}

// Images returns the card's image URIs. Double-faced cards carry them on
// their first face. The result is nil when the card has no images.
func (s *Service) Images(ctx context.Context, id string) (models.ImageURIs, error) {
	raw, err := s.card(ctx, id)
	if err != nil {
		return nil, err
	}
	var card cardImages
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, fmt.Errorf("decode card %s: %w", id, err)
	}
	if len(card.ImageURIs) > 0 {
		return card.ImageURIs, nil
	}
	if len(card.CardFaces) > 0 && len(card.CardFaces[0].ImageURIs) > 0 {
		return card.CardFaces[0].ImageURIs, nil
	}
	return nil, nil
}

type cardPrices struct {
	Prices struct {
		EUR     *string `json:"eur"`
		EURFoil *string `json:"eur_foil"`
		USD     *string `json:"usd"`
		USDFoil *string `json:"usd_foil"`
		Tix     *string `json:"tix"`
	} `json:"prices"`
}

// Prices returns the card's current prices.
func (s *Service) Prices(ctx context.Context, id string) (models.Prices, error) {
	raw, err := s.card(ctx, id)
	if err != nil {
		return models.Prices{}, err
	}
	var card cardPrices
	if err := json.Unmarshal(raw, &card); err != nil {
		return models.Prices{}, fmt.Errorf("decode card %s: %w", id, err)
	}

	p := models.Prices{Provider: models.PriceProvider}
	fields := []struct {
		dst  *decimal.NullDecimal
		src  *string
		name string
	}{
		{&p.EUR, card.Prices.EUR, "eur"},
		{&p.EURFoil, card.Prices.EURFoil, "eur_foil"},
		{&p.USD, card.Prices.USD, "usd"},
		{&p.USDFoil, card.Prices.USDFoil, "usd_foil"},
		{&p.Tix, card.Prices.Tix, "tix"},
	}
	var errs []error
	for _, f := range fields {
		if f.src == nil {
			continue
		}
		d, err := decimal.NewFromString(*f.src)
		if err != nil {
			errs = append(errs, fmt.Errorf("price %s: %w", f.name, err))
			continue
		}
		*f.dst = decimal.NewNullDecimal(d)
	}
	if err := errors.Join(errs...); err != nil {
		return models.Prices{}, fmt.Errorf("decode card %s: %w", id, err)
	}
	return p, nil
}

// CacheStats reports the underlying cache metrics.
func (s *Service) CacheStats() models.CacheStats {
	return s.cache.Stats()
}
