package payment

import (
	"fmt"
	"net/url"

	"go-ticketvote/internal/models"
)

// ParseResult decodes the query string of a provider callback URL.
// Missing parameters come back as empty strings. Only a malformed URL is an error.
func ParseResult(rawURL string) (models.PaymentResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.PaymentResult{}, fmt.Errorf("invalid callback url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return models.PaymentResult{}, fmt.Errorf("invalid callback url %q: not absolute", rawURL)
	}

	q := u.Query()
	return models.PaymentResult{
		Reference:    q.Get("reference"),
		TransAmount:  q.Get("transAmount"),
		TransRef:     q.Get("transRef"),
		ProcessorFee: q.Get("processorFee"),
		ErrorMessage: q.Get("errorMessage"),
		Currency:     q.Get("currency"),
		Gateway:      q.Get("gateway"),
		Status:       q.Get("status"),
	}, nil
}
