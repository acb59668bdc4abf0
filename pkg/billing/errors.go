package billing

import "errors"

// SignatureError indicates an inbound payload that failed authentication.
// It maps to a 400 response; the provider treats the delivery as rejected
// and does not retry.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "webhook signature verification failed: " + e.Reason
}

// IsSignatureError checks if an error is a SignatureError
func IsSignatureError(err error) bool {
	var sigErr *SignatureError
	return errors.As(err, &sigErr)
}
