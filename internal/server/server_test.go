package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xperimental/githook/internal/config"
	"github.com/xperimental/githook/internal/data"
	"github.com/xperimental/githook/internal/hook"
	"github.com/xperimental/githook/internal/youtrack"
)

const gitlabPayload = `{
  "object_kind": "push",
  "user_name": "Jane Doe",
  "ref": "refs/heads/master",
  "repository": {
    "name": "githook",
    "url": "git@example.com:tools/githook.git",
    "homepage": "https://example.com/tools/githook"
  },
  "commits": [
    {
      "id": "b6568db1bc1dcd7f8b4d5a946b0b91f9dacd7327",
      "message": "Fixes ABC-123 and XYZ-1",
      "timestamp": "2011-12-12T14:27:31+02:00",
      "url": "https://example.com/tools/githook/commit/b6568db1bc1dcd7f8b4d5a946b0b91f9dacd7327",
      "author": {
        "name": "Jane Doe",
        "email": "jane@example.com"
      }
    }
  ]
}`

const githubPayload = `{
  "ref": "refs/heads/main",
  "pusher": {"name": "janedoe", "email": "jane@example.com"},
  "repository": {
    "name": "githook",
    "url": "https://github.com/tools/githook",
    "html_url": "https://github.com/tools/githook"
  },
  "commits": [
    {
      "id": "0d1a26e67d8f5eaf1f6ba5c57fc3c7d91ac0fd1c",
      "message": "Update README",
      "timestamp": "2015-05-05T19:40:15-04:00",
      "url": "https://github.com/tools/githook/commit/0d1a26e67d8f5eaf1f6ba5c57fc3c7d91ac0fd1c",
      "author": {"name": "Jane Doe", "email": "jane@example.com"}
    }
  ]
}`

type fakeProcessor struct {
	events []*data.PushEvent
	err    error
}

func (f *fakeProcessor) Process(_ context.Context, _ logrus.FieldLogger, event *data.PushEvent) (*hook.Result, error) {
	f.events = append(f.events, event)
	if f.err != nil {
		return nil, f.err
	}

	return &hook.Result{}, nil
}

func newTestServer(t *testing.T, secret string, processor PushProcessor) (*Server, *test.Hook) {
	t.Helper()

	log, logHook := test.NewNullLogger()
	srv, err := New(log, config.Server{
		ListenAddress:   ":0",
		ShutdownTimeout: time.Second,
		Secret:          secret,
	}, processor)
	require.NoError(t, err)

	return srv, logHook
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	return rec
}

func githubRequest(event, payload, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(payload))
	req.Header.Set("X-Hub-Signature", "sha1="+hex.EncodeToString(mac.Sum(nil)))

	return req
}

func TestNew(t *testing.T) {
	log, _ := test.NewNullLogger()

	_, err := New(log, config.Server{ShutdownTimeout: time.Second}, &fakeProcessor{})
	assert.Error(t, err)

	_, err = New(log, config.Server{ListenAddress: ":8080"}, &fakeProcessor{})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	srv, _ := newTestServer(t, "", &fakeProcessor{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ping", rec.Body.String())
}

func TestPushMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, "", &fakeProcessor{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/hook", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type fakeTracker struct {
	commands []string
}

func (f *fakeTracker) GetUser(_ context.Context, login string) (*youtrack.User, error) {
	return &youtrack.User{Login: login}, nil
}

func (f *fakeTracker) GetUsers(_ context.Context, params url.Values) ([]*youtrack.User, error) {
	if params.Get("q") == "jane@example.com" {
		return []*youtrack.User{{Login: "jane"}}, nil
	}

	return nil, nil
}

func (f *fakeTracker) GetIssue(_ context.Context, id string) (*youtrack.Issue, error) {
	if id != "ABC-123" {
		return nil, &youtrack.Error{Path: "/issue/" + id, StatusCode: http.StatusNotFound, Reason: "Not Found"}
	}

	return &youtrack.Issue{ID: id}, nil
}

func (f *fakeTracker) ExecuteCommand(_ context.Context, issueID, command string, opts youtrack.CommandOptions) error {
	f.commands = append(f.commands, issueID+" "+command+" as "+opts.RunAs)
	return nil
}

func TestPushEvent(t *testing.T) {
	for _, path := range []string{"/hook", "/push_event"} {
		t.Run(path, func(t *testing.T) {
			tracker := &fakeTracker{}
			hookLog, _ := test.NewNullLogger()
			processor, err := hook.New(hookLog, config.Hook{
				IssuePattern: config.DefaultIssuePattern,
				DefaultUser:  "bot",
				Command:      "comment",
			}, func(context.Context) (hook.Tracker, error) {
				return tracker, nil
			})
			require.NoError(t, err)

			srv, logHook := newTestServer(t, "", processor)
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(gitlabPayload))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Gitlab-Event", "Push Hook")

			rec := serve(srv, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, processedMessage, rec.Body.String())
			assert.Equal(t, []string{"ABC-123 comment as jane"}, tracker.commands)

			var warnings []string
			for _, e := range logHook.AllEntries() {
				if e.Level == logrus.WarnLevel {
					warnings = append(warnings, e.Message)
				}
			}
			assert.Equal(t, []string{"Couldn't comment on issue XYZ-1: error for [/issue/XYZ-1]: 404: Not Found"}, warnings)
		})
	}
}

func TestPushEventGitLabToken(t *testing.T) {
	tests := []struct {
		desc   string
		token  string
		status int
		events int
	}{
		{
			desc:   "matching token",
			token:  "s3cret",
			status: http.StatusOK,
			events: 1,
		},
		{
			desc:   "wrong token",
			token:  "guess",
			status: http.StatusUnauthorized,
		},
		{
			desc:   "missing token",
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			processor := &fakeProcessor{}
			srv, _ := newTestServer(t, "s3cret", processor)

			req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(gitlabPayload))
			if tt.token != "" {
				req.Header.Set("X-Gitlab-Token", tt.token)
			}

			rec := serve(srv, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Len(t, processor.events, tt.events)
		})
	}
}

func TestPushEventGitHub(t *testing.T) {
	processor := &fakeProcessor{}
	srv, logHook := newTestServer(t, "s3cret", processor)

	rec := serve(srv, githubRequest("push", githubPayload, "s3cret"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, processor.events, 1)
	assert.Equal(t, &data.PushEvent{
		UserName: "janedoe",
		Repository: data.Repository{
			Name:     "githook",
			URL:      "https://github.com/tools/githook",
			Homepage: "https://github.com/tools/githook",
		},
		Ref: "refs/heads/main",
		Commits: []data.Commit{
			{
				ID:        "0d1a26e67d8f5eaf1f6ba5c57fc3c7d91ac0fd1c",
				Message:   "Update README",
				Timestamp: "2015-05-05T19:40:15-04:00",
				URL:       "https://github.com/tools/githook/commit/0d1a26e67d8f5eaf1f6ba5c57fc3c7d91ac0fd1c",
				Author:    data.User{Name: "Jane Doe", Email: "jane@example.com"},
			},
		},
	}, processor.events[0])

	require.NotNil(t, logHook.LastEntry())
	assert.Equal(t, "72d3162e-cc78-11e3-81ab-4c9367dc0958", logHook.LastEntry().Data["delivery"])
}

func TestPushEventGitHubForm(t *testing.T) {
	processor := &fakeProcessor{}
	srv, _ := newTestServer(t, "", processor)

	body := url.Values{"payload": {githubPayload}}.Encode()
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-GitHub-Event", "push")

	rec := serve(srv, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, processor.events, 1)
	assert.Equal(t, "refs/heads/main", processor.events[0].Ref)
	assert.Equal(t, "janedoe", processor.events[0].UserName)
}

func TestPushEventGitHubBadSignature(t *testing.T) {
	processor := &fakeProcessor{}
	srv, _ := newTestServer(t, "s3cret", processor)

	rec := serve(srv, githubRequest("push", githubPayload, "guess"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, processor.events)
}

func TestPushEventGitHubIgnored(t *testing.T) {
	processor := &fakeProcessor{}
	srv, _ := newTestServer(t, "", processor)

	rec := serve(srv, githubRequest("ping", `{"zen": "Keep it logically awesome."}`, ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event ignored.", rec.Body.String())
	assert.Empty(t, processor.events)
}

func TestPushEventInvalid(t *testing.T) {
	tests := []struct {
		desc    string
		payload string
	}{
		{
			desc:    "not JSON",
			payload: "user_name=jane",
		},
		{
			desc:    "missing repository",
			payload: `{"user_name": "jane", "commits": []}`,
		},
		{
			desc:    "commit without id",
			payload: `{"repository": {"name": "githook"}, "commits": [{"message": "ABC-1"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			processor := &fakeProcessor{}
			srv, _ := newTestServer(t, "", processor)

			rec := serve(srv, httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(tt.payload)))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Empty(t, processor.events)
		})
	}
}

func TestPushEventProcessingFailed(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("can not connect to tracker")}
	srv, logHook := newTestServer(t, "", processor)

	rec := serve(srv, httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(gitlabPayload)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "can not connect to tracker")
	assert.Equal(t, logrus.ErrorLevel, logHook.LastEntry().Level)
}

func TestStartAndShutdown(t *testing.T) {
	log, _ := test.NewNullLogger()
	srv, err := New(log, config.Server{
		ListenAddress:   "127.0.0.1:0",
		ShutdownTimeout: time.Second,
	}, &fakeProcessor{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	require.NoError(t, srv.Start(ctx, wg))

	cancel()
	wg.Wait()
}
