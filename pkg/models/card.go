package models

import "github.com/shopspring/decimal"

// PriceProvider is the provider tag attached to every price projection.
const PriceProvider = "scryfall"

// ImageURIs maps an image kind (small, normal, large, png, art_crop, border_crop)
// to its URI, exactly as the catalog returns it.
type ImageURIs map[string]string

// Prices is the narrowed price projection of a catalog card. Missing prices are
// encoded as null.
type Prices struct {
	EUR      decimal.NullDecimal `json:"eur"`
	EURFoil  decimal.NullDecimal `json:"eur_foil"`
	USD      decimal.NullDecimal `json:"usd"`
	USDFoil  decimal.NullDecimal `json:"usd_foil"`
	Tix      decimal.NullDecimal `json:"tix"`
	Provider string              `json:"provider"`
}

// NameQuery selects a card by name. Exactly one of Exact or Fuzzy must be set.
type NameQuery struct {
	Exact string `json:"exact,omitempty"`
	Fuzzy string `json:"fuzzy,omitempty"`
}
