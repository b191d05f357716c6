package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/google/go-github/github"
	uuid "github.com/satori/go.uuid"
	"github.com/xperimental/githook/internal/data"
)

const (
	gitlabTokenHeader = "X-Gitlab-Token"
	gitlabEventHeader = "X-Gitlab-Event"
	gitlabUUIDHeader  = "X-Gitlab-Event-UUID"
	githubEventHeader = "X-GitHub-Event"

	maxBodySize = 10 << 20
)

var errUnauthorized = errors.New("secret does not match")

// deliveryID identifies a delivery in the logs. The ID of the sender is used if there is one.
func deliveryID(r *http.Request) string {
	if id := github.DeliveryID(r); id != "" {
		return id
	}

	if id := r.Header.Get(gitlabUUIDHeader); id != "" {
		return id
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "unknown"
	}

	return id.String()
}

func eventType(r *http.Request) string {
	if t := github.WebHookType(r); t != "" {
		return t
	}

	return r.Header.Get(gitlabEventHeader)
}

// decodeEvent reads the push event of a request. A nil event without error is returned for
// deliveries that are not push events.
func decodeEvent(r *http.Request, secret string) (*data.PushEvent, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)

	if r.Header.Get(githubEventHeader) != "" {
		return decodeGitHub(r, secret)
	}

	if secret != "" {
		token := r.Header.Get(gitlabTokenHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return nil, errUnauthorized
		}
	}

	var event data.PushEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		return nil, fmt.Errorf("can not parse JSON: %w", err)
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}

	return &event, nil
}

// readGitHubPayload reads an unsigned GitHub payload, which is either the JSON body or
// the "payload" field of a form-encoded body.
func readGitHubPayload(r *http.Request) ([]byte, error) {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		ct = ""
	}

	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("can not parse form body: %w", err)
		}

		return []byte(r.PostForm.Get("payload")), nil
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("can not read body: %w", err)
	}

	return payload, nil
}

func decodeGitHub(r *http.Request, secret string) (*data.PushEvent, error) {
	var payload []byte
	var err error
	if secret != "" {
		payload, err = github.ValidatePayload(r, []byte(secret))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errUnauthorized, err)
		}
	} else {
		payload, err = readGitHubPayload(r)
		if err != nil {
			return nil, err
		}
	}

	if github.WebHookType(r) != "push" {
		return nil, nil
	}

	parsed, err := github.ParseWebHook("push", payload)
	if err != nil {
		return nil, fmt.Errorf("can not parse GitHub event: %w", err)
	}

	push, ok := parsed.(*github.PushEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected GitHub event type %T", parsed)
	}

	event := fromGitHub(push)
	if err := event.Validate(); err != nil {
		return nil, err
	}

	return event, nil
}

func fromGitHub(push *github.PushEvent) *data.PushEvent {
	repo := push.GetRepo()
	event := &data.PushEvent{
		UserName: push.GetPusher().GetName(),
		Repository: data.Repository{
			Name:     repo.GetName(),
			URL:      repo.GetURL(),
			Homepage: repo.GetHTMLURL(),
		},
		Ref: push.GetRef(),
	}

	for _, c := range push.Commits {
		event.Commits = append(event.Commits, data.Commit{
			ID:        c.GetID(),
			Message:   c.GetMessage(),
			Timestamp: c.GetTimestamp().Format(time.RFC3339),
			URL:       c.GetURL(),
			Author: data.User{
				Name:  c.GetAuthor().GetName(),
				Email: c.GetAuthor().GetEmail(),
			},
		})
	}

	return event
}
