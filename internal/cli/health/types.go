// Package health provides shared types for gateway health responses.
package health

// Response represents the control API health response structure.
type Response struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		State   string `json:"state"`
		Pending int    `json:"pending"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// Healthy reports whether the response carries a healthy status.
func (r *Response) Healthy() bool {
	return r.Status == "healthy"
}
