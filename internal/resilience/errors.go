package resilience

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// maxVendorBody bounds how much of a vendor error body is kept.
const maxVendorBody = 256

// VendorError is a non-2xx reply from an enrichment vendor.
type VendorError struct {
	StatusCode int
	Body       string
}

// NewVendorError builds a VendorError, trimming the body.
func NewVendorError(statusCode int, body string) *VendorError {
	body = strings.TrimSpace(body)
	if len(body) > maxVendorBody {
		body = body[:maxVendorBody]
	}
	return &VendorError{StatusCode: statusCode, Body: body}
}

func (e *VendorError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("vendor returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("vendor returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the vendor is throttling or briefly down.
// Other statuses (bad key, bad request, not found) repeat on every attempt.
func (e *VendorError) Retryable() bool {
	switch e.StatusCode {
	case 408, 425, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// IsTransient reports whether a vendor call failed in a way another attempt
// can fix: a retryable VendorError, a network timeout, a dropped connection
// or a truncated body. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
