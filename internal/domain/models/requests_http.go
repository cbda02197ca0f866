package models

// Requests for the training/drift trigger endpoints. Defined in domain for
// consistency and reuse.

type TrainRequest struct {
	Symbols      []string `json:"symbols" validate:"omitempty,dive,required"`
	LookbackDays int      `json:"lookback_days" default:"30" validate:"gte=1,lte=365"`
	TF           string   `json:"tf" default:"5m" validate:"oneof=1s 1m 5m"`
	Async        bool     `json:"async" default:"true"`
}

type DriftRequest struct {
	Version       string `param:"version" json:"version" validate:"required"`
	WindowMinutes int    `query:"window_minutes" json:"window_minutes" default:"60" validate:"gte=5,lte=10080"`
	From          string `query:"from" json:"from"` // RFC3339 or unix seconds; overrides window_minutes
	To            string `query:"to" json:"to"`
}

type PromoteRequest struct {
	Version string `param:"version" json:"version" validate:"required"`
}

type CompareRequest struct {
	VersionA string `query:"a" json:"a" validate:"required"`
	VersionB string `query:"b" json:"b" validate:"required"`
}

type ListModelsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
