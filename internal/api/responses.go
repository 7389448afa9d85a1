package api

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// BatchItemError annotates a single failed item within a batch operation.
type BatchItemError struct {
	ID     int    `json:"id"`
	Reason string `json:"reason"`
}
