package models

// Requests for the operational HTTP endpoints. Defined in domain for consistency and reuse.

type QuoteRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Market string `query:"market" json:"market" default:"US" validate:"oneof=US TASE FOREX CRYPTO"`
}

type BackfillRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
	Market string `query:"market" json:"market" default:"US" validate:"oneof=US TASE FOREX CRYPTO"`
	Days   int    `query:"days" json:"days" default:"365" validate:"gte=1,lte=3650"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Days   int    `query:"days" json:"days" default:"30" validate:"gte=1,lte=3650"`
}

type MarketStatusRequest struct {
	Market string `query:"market" json:"market" default:"US" validate:"oneof=US TASE FOREX CRYPTO"`
}
