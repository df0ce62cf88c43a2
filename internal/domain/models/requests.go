package models

// Requests for the HTTP API. Defined in domain for reuse by handlers and tests.

type InstrumentRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required,instrument"`
}

type AnalyzeRequest struct {
	Instrument string `json:"instrument" validate:"required,instrument"`
	Bars       []Bar  `json:"bars" validate:"required,min=1,dive"`
}

// SignalsRequest filters stored signals. From and To accept RFC3339 or unix
// seconds/milliseconds.
type SignalsRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"omitempty,instrument"`
	Limit      int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
	From       string `query:"from" json:"from"`
	To         string `query:"to" json:"to"`
}
