package youtrack

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is returned for every response of the tracker that has a status outside the accepted set.
type Error struct {
	Path       string
	StatusCode int
	Reason     string
	Body       []byte
	// Message contains the error text extracted from the response body, if any.
	Message string
}

func newError(path string, resp *http.Response, body []byte) *Error {
	e := &Error{
		Path:       path,
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Body:       body,
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") {
		e.Message = errorMessage(body)
	}

	return e
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("error for [%s]: %d", e.Path, e.StatusCode)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

// IsNotFound reports whether err is a tracker error with status 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, status int) bool {
	var ytErr *Error
	return errors.As(err, &ytErr) && ytErr.StatusCode == status
}

func reasonPhrase(resp *http.Response) string {
	// resp.Status is "404 Not Found"
	if _, reason, ok := strings.Cut(resp.Status, " "); ok {
		return reason
	}

	return http.StatusText(resp.StatusCode)
}

// errorMessage returns the text of an <error> document, the re-encoded document for other XML
// and the raw body when it is not XML at all.
func errorMessage(body []byte) string {
	el, err := parseElement(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}

	if el.XMLName.Local == "error" {
		return el.Text
	}

	return el.String()
}
