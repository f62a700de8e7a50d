package server

// Request shapes of the browser API. Bound from path, query and JSON body.

type watchRequest struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Source string `json:"source" validate:"required,oneof=steam twitch"`
}

type watchKeyRequest struct {
	Source string `param:"source" validate:"required,oneof=steam twitch"`
	ID     string `param:"id" validate:"required"`
}

type trendRequest struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name"`
	Source string `json:"source" validate:"required,oneof=steam twitch"`
}

type daysRequest struct {
	Days int `param:"days" validate:"required,gte=1,lte=30"`
}

type forecastRequest struct {
	On bool `param:"on"`
}

type panelRequest struct {
	Name string `param:"name" validate:"required"`
}

type digestRequest struct {
	Tag string `query:"tag" default:"all" validate:"oneof=all ad collab event news"`
}

type surgesRequest struct {
	Limit int `query:"limit" default:"10" validate:"gte=1,lte=100"`
}
