package event

// IngestRequest тело POST /events
type IngestRequest struct {
	Events []Wire `json:"events"`
}

// Rejection событие, которое сервер никогда не примет
type Rejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// IngestResponse ответ POST /events.
// AcceptedIDs идут в порядке отправки и образуют префикс неотклоненных событий запроса.
type IngestResponse struct {
	Accepted    int         `json:"accepted"`
	AcceptedIDs []string    `json:"accepted_ids"`
	Rejected    []Rejection `json:"rejected"`
}
