package api

// RenderResponse is the inline base64 render result
type RenderResponse struct {
	Format string `json:"format"`
	Base64 string `json:"base64"`
}

// ErrorResponse is the error body for failed requests
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is the response for health check endpoints
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for the readiness endpoint
type ReadyResponse struct {
	Status        string `json:"status"`
	FormatProfile string `json:"format_profile,omitempty"`
}
