package youtrack

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xperimental/githook/internal/config"
	"golang.org/x/oauth2"
)

const (
	apiKeyHeader   = "X-YouTrack-ApiKey"
	xmlContentType = "application/xml; charset=UTF-8"
	emptyBody      = "<empty/>\n\n"
)

var errNotXML = errors.New("response is not XML")

// Connection is an authenticated session with the tracker's REST API. It keeps no state besides
// the authentication headers, every method results in exactly one request unless noted otherwise.
type Connection struct {
	log     logrus.FieldLogger
	client  *http.Client
	url     string
	baseURL string
	header  http.Header
}

// Payload is a response body decoded according to its content type.
type Payload struct {
	StatusCode int
	XML        *Element
	JSON       interface{}
	Raw        []byte
	// Location is set for PUT requests answered with a Location header.
	Location string
}

// New opens a connection. Password authentication logs in immediately, API keys and tokens are
// sent with every request.
func New(ctx context.Context, log logrus.FieldLogger, cfg config.Tracker) (*Connection, error) {
	if cfg.URL == "" {
		return nil, errors.New("URL can not be empty")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var roundTripper http.RoundTripper = transport
	if cfg.Token != "" {
		roundTripper = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   transport,
		}
	}

	trackerURL := strings.TrimRight(cfg.URL, "/")
	c := &Connection{
		log: log,
		client: &http.Client{
			Transport: roundTripper,
			Timeout:   cfg.Timeout,
		},
		url:     trackerURL,
		baseURL: trackerURL + "/rest",
		header:  http.Header{},
	}

	switch {
	case cfg.APIKey != "":
		c.header.Set(apiKeyHeader, cfg.APIKey)
	case cfg.Token != "":
	default:
		if err := c.login(ctx, cfg.Login, cfg.Password); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Connection) login(ctx context.Context, login, password string) error {
	query := url.Values{
		"login":    {login},
		"password": {password},
	}
	path := "/user/login"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("can not create login request: %w", err)
	}
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error during login: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("can not read login response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return newError(path, resp, body)
	}

	cookies := make([]string, 0, len(resp.Cookies()))
	for _, cookie := range resp.Cookies() {
		cookies = append(cookies, cookie.Name+"="+cookie.Value)
	}
	c.header.Set("Cookie", strings.Join(cookies, "; "))
	c.header.Set("Cache-Control", "no-cache")

	c.log.Debugf("Logged in as %s", login)
	return nil
}

type response struct {
	statusCode int
	header     http.Header
	body       []byte
}

// send performs a single request. Statuses other than 200, 201 and the acceptable ones result
// in an *Error.
func (c *Connection) send(ctx context.Context, method, path, contentType string, body io.Reader, acceptable ...int) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("can not create request: %w", err)
	}

	for name, values := range c.header {
		req.Header[name] = values
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.log.Debugf("[%s] %s", method, path)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("can not read response for %s: %w", path, err)
	}

	if !accepted(resp.StatusCode, acceptable) {
		return nil, newError(path, resp, data)
	}

	return &response{
		statusCode: resp.StatusCode,
		header:     resp.Header,
		body:       data,
	}, nil
}

func accepted(status int, acceptable []int) bool {
	if status == http.StatusOK || status == http.StatusCreated {
		return true
	}

	for _, s := range acceptable {
		if s == status {
			return true
		}
	}

	return false
}

// req sends an XML body for PUT and POST requests.
func (c *Connection) req(ctx context.Context, method, path string, body []byte, acceptable ...int) (*response, error) {
	var contentType string
	var reader io.Reader
	if method == http.MethodPut || method == http.MethodPost {
		contentType = xmlContentType
		reader = bytes.NewReader(body)
	}

	return c.send(ctx, method, path, contentType, reader, acceptable...)
}

// do sends a request and decodes the response according to its content type.
func (c *Connection) do(ctx context.Context, method, path string, body []byte, acceptable ...int) (*Payload, error) {
	resp, err := c.req(ctx, method, path, body, acceptable...)
	if err != nil {
		return nil, err
	}

	return decodePayload(method, resp), nil
}

func decodePayload(method string, resp *response) *Payload {
	p := &Payload{
		StatusCode: resp.statusCode,
		Raw:        resp.body,
	}

	ct := resp.header.Get("Content-Type")
	switch {
	case len(resp.body) == 0:
	case strings.Contains(ct, "application/xml") || strings.Contains(ct, "text/xml"):
		if el, err := parseElement(bytes.NewReader(resp.body)); err == nil {
			p.XML = el
		}
	case strings.Contains(ct, "application/json"):
		var v interface{}
		if err := json.Unmarshal(resp.body, &v); err == nil {
			p.JSON = v
		}
	}

	if method == http.MethodPut {
		p.Location = resp.header.Get("Location")
	}

	return p
}

// get fetches a resource and parses it as XML regardless of the declared content type.
func (c *Connection) get(ctx context.Context, path string) (*Element, error) {
	resp, err := c.req(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	el, err := parseElement(bytes.NewReader(resp.body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", errNotXML, path, err)
	}

	return el, nil
}

// getList fetches a resource and returns the children of the root element.
func (c *Connection) getList(ctx context.Context, path string) ([]*Element, error) {
	el, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	return el.Children, nil
}

func (c *Connection) put(ctx context.Context, path string) (*Payload, error) {
	return c.do(ctx, http.MethodPut, path, []byte(emptyBody))
}

func (c *Connection) delete(ctx context.Context, path string, acceptable ...int) error {
	_, err := c.req(ctx, http.MethodDelete, path, nil, acceptable...)
	return err
}

// quote escapes a single path segment.
func quote(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func withQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}

	return path + "?" + query.Encode()
}

func decodeAll[T any](elements []*Element, decode func(*Element) T) []T {
	result := make([]T, 0, len(elements))
	for _, el := range elements {
		result = append(result, decode(el))
	}

	return result
}
