package events

import "shopnav/internal/domain/event"

type ingestInput struct {
	Body event.IngestRequest
}

type ingestOutput struct {
	Body *event.IngestResponse
}
