package health

import "time"

type Input struct{}

type Output struct {
	Body Response
}

type Response struct {
	Status     string    `json:"status" example:"OK"`
	Database   string    `json:"database" enum:"up,unchecked" doc:"unchecked when the server runs without a pool"`
	ServerTime time.Time `json:"server_time"`
}
