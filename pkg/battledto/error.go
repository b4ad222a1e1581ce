package battledto

// ErrorView is the uniform error body. Code is stable for machines; Message
// comes from the message catalog and may be reworded per deployment.
type ErrorView struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
