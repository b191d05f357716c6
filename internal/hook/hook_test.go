package hook

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xperimental/githook/internal/config"
	"github.com/xperimental/githook/internal/data"
	"github.com/xperimental/githook/internal/youtrack"
)

type command struct {
	IssueID string
	Command string
	Options youtrack.CommandOptions
}

type fakeTracker struct {
	users    map[string]*youtrack.User
	byEmail  map[string][]*youtrack.User
	issues   map[string]bool
	issueErr error
	commands []command
}

func (f *fakeTracker) GetUser(_ context.Context, login string) (*youtrack.User, error) {
	user, ok := f.users[login]
	if !ok {
		return nil, &youtrack.Error{Path: "/admin/user/" + login, StatusCode: http.StatusNotFound}
	}

	return user, nil
}

func (f *fakeTracker) GetUsers(_ context.Context, params url.Values) ([]*youtrack.User, error) {
	return f.byEmail[params.Get("q")], nil
}

func (f *fakeTracker) GetIssue(_ context.Context, id string) (*youtrack.Issue, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}

	if !f.issues[id] {
		return nil, &youtrack.Error{Path: "/issue/" + id, StatusCode: http.StatusNotFound, Reason: "Not Found"}
	}

	return &youtrack.Issue{ID: id}, nil
}

func (f *fakeTracker) ExecuteCommand(_ context.Context, issueID, cmd string, opts youtrack.CommandOptions) error {
	f.commands = append(f.commands, command{IssueID: issueID, Command: cmd, Options: opts})
	return nil
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		users: map[string]*youtrack.User{
			"bot": {Login: "bot"},
		},
		byEmail: map[string][]*youtrack.User{
			"jane@example.com": {{Login: "jane"}},
			"team@example.com": {{Login: "john"}, {Login: "joe"}},
		},
		issues: map[string]bool{
			"ABC-123": true,
			"DEF-45":  true,
		},
	}
}

func testConfig() config.Hook {
	return config.Hook{
		IssuePattern: config.DefaultIssuePattern,
		DefaultUser:  "bot",
		Command:      "comment",
	}
}

func newTestProcessor(t *testing.T, cfg config.Hook, tracker Tracker) (*Processor, *int) {
	t.Helper()

	dials := 0
	dial := func(context.Context) (Tracker, error) {
		dials++
		return tracker, nil
	}

	log, _ := test.NewNullLogger()
	p, err := New(log, cfg, dial)
	require.NoError(t, err)

	return p, &dials
}

func testEvent(commits ...data.Commit) *data.PushEvent {
	return &data.PushEvent{
		UserName: "Jane Doe",
		Repository: data.Repository{
			Name:     "githook",
			URL:      "git@example.com:tools/githook.git",
			Homepage: "https://example.com/tools/githook",
		},
		Ref:     "refs/heads/master",
		Commits: commits,
	}
}

func testCommit(id, message, email string) data.Commit {
	return data.Commit{
		ID:        id,
		Message:   message,
		Timestamp: "2011-12-12T14:27:31+02:00",
		URL:       "https://example.com/tools/githook/commit/" + id,
		Author: data.User{
			Name:  "Jane Doe",
			Email: email,
		},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		desc    string
		cfg     func(cfg *config.Hook)
		wantErr bool
	}{
		{
			desc: "valid",
			cfg:  func(*config.Hook) {},
		},
		{
			desc:    "no default user",
			cfg:     func(cfg *config.Hook) { cfg.DefaultUser = "" },
			wantErr: true,
		},
		{
			desc:    "no command",
			cfg:     func(cfg *config.Hook) { cfg.Command = "" },
			wantErr: true,
		},
		{
			desc:    "invalid pattern",
			cfg:     func(cfg *config.Hook) { cfg.IssuePattern = "([A-Z]+" },
			wantErr: true,
		},
		{
			desc:    "invalid template",
			cfg:     func(cfg *config.Hook) { cfg.CommentTemplate = "{{ .Commit.ID " },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg := testConfig()
			tt.cfg(&cfg)

			log, _ := test.NewNullLogger()
			_, err := New(log, cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReferences(t *testing.T) {
	tests := []struct {
		desc    string
		pattern string
		message string
		refs    []string
	}{
		{
			desc:    "two references",
			pattern: config.DefaultIssuePattern,
			message: "Fixes ABC-123 and DEF-45",
			refs:    []string{"ABC-123", "DEF-45"},
		},
		{
			desc:    "no reference",
			pattern: config.DefaultIssuePattern,
			message: "Update README",
		},
		{
			desc:    "multiple lines",
			pattern: config.DefaultIssuePattern,
			message: "Refactor parser\n\nSee XYZ-7",
			refs:    []string{"XYZ-7"},
		},
		{
			desc:    "lower case is not an issue",
			pattern: config.DefaultIssuePattern,
			message: "abc-123",
		},
		{
			desc:    "first group is the ID",
			pattern: `#([A-Z]+-\d+)`,
			message: "Closes #ABC-1, mentions ABC-2",
			refs:    []string{"ABC-1"},
		},
		{
			desc:    "pattern without group",
			pattern: `[A-Z]+-\d+`,
			message: "ABC-1 ABC-2",
			refs:    []string{"ABC-1", "ABC-2"},
		},
		{
			desc:    "anchored pattern applies to every line",
			pattern: `^([A-Z]+-\d+)`,
			message: "ABC-1 first\nABC-2 second\nthird ABC-3",
			refs:    []string{"ABC-1", "ABC-2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg := testConfig()
			cfg.IssuePattern = tt.pattern
			p, _ := newTestProcessor(t, cfg, newFakeTracker())

			assert.Equal(t, tt.refs, p.References(tt.message))
		})
	}
}

func TestProcess(t *testing.T) {
	tracker := newFakeTracker()
	p, dials := newTestProcessor(t, testConfig(), tracker)

	event := testEvent(testCommit("b6568db1bc1dcd7f8b4d5a946b0b91f9dacd7327", "Fixes ABC-123 and DEF-45", "jane@example.com"))

	result, err := p.Process(context.Background(), nil, event)
	require.NoError(t, err)

	assert.Equal(t, &Result{Comments: 2}, result)
	assert.Equal(t, 1, *dials)

	expected := "Commit [https://example.com/tools/githook/commit/b6568db1bc1dcd7f8b4d5a946b0b91f9dacd7327 b6568db1bc1dcd7f8b4d5a946b0b91f9dacd7327]" +
		" on branch refs/heads/master in [https://example.com/tools/githook githook] made by Jane Doe on 2011-12-12 14:27:31+02:00\n" +
		"{quote}Fixes ABC-123 and DEF-45{quote}"
	assert.Equal(t, []command{
		{IssueID: "ABC-123", Command: "comment", Options: youtrack.CommandOptions{Comment: expected, RunAs: "jane"}},
		{IssueID: "DEF-45", Command: "comment", Options: youtrack.CommandOptions{Comment: expected, RunAs: "jane"}},
	}, tracker.commands)
}

func TestProcessWithoutReferences(t *testing.T) {
	tracker := newFakeTracker()
	p, dials := newTestProcessor(t, testConfig(), tracker)

	event := testEvent(
		testCommit("1111111", "Update README", "jane@example.com"),
		testCommit("2222222", "Bump version", "jane@example.com"),
	)

	result, err := p.Process(context.Background(), nil, event)
	require.NoError(t, err)

	assert.Equal(t, &Result{}, result)
	assert.Equal(t, 0, *dials)
	assert.Empty(t, tracker.commands)
}

func TestProcessDefaultUser(t *testing.T) {
	tests := []struct {
		desc    string
		email   string
		runAs   string
		warning string
	}{
		{
			desc:  "single match",
			email: "jane@example.com",
			runAs: "jane",
		},
		{
			desc:    "no match",
			email:   "nobody@example.com",
			runAs:   "bot",
			warning: "Couldn't find user with email address nobody@example.com. Using default user.",
		},
		{
			desc:    "ambiguous match",
			email:   "team@example.com",
			runAs:   "bot",
			warning: "Found more than one user with email address team@example.com. Using default user.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			tracker := newFakeTracker()
			p, _ := newTestProcessor(t, testConfig(), tracker)
			log, logHook := test.NewNullLogger()

			_, err := p.Process(context.Background(), log, testEvent(testCommit("1111111", "ABC-123", tt.email)))
			require.NoError(t, err)

			require.Len(t, tracker.commands, 1)
			assert.Equal(t, tt.runAs, tracker.commands[0].Options.RunAs)

			if tt.warning == "" {
				assert.Empty(t, logHook.AllEntries())
				return
			}

			require.Len(t, logHook.AllEntries(), 1)
			assert.Equal(t, logrus.WarnLevel, logHook.LastEntry().Level)
			assert.Equal(t, tt.warning, logHook.LastEntry().Message)
		})
	}
}

func TestProcessMissingDefaultUser(t *testing.T) {
	tracker := newFakeTracker()
	cfg := testConfig()
	cfg.DefaultUser = "ghost"
	p, _ := newTestProcessor(t, cfg, tracker)

	_, err := p.Process(context.Background(), nil, testEvent(testCommit("1111111", "ABC-123", "jane@example.com")))
	assert.Error(t, err)
	assert.Empty(t, tracker.commands)
}

func TestProcessMissingIssue(t *testing.T) {
	tracker := newFakeTracker()
	p, _ := newTestProcessor(t, testConfig(), tracker)
	log, logHook := test.NewNullLogger()

	event := testEvent(
		testCommit("1111111", "Fixes XYZ-1 and ABC-123", "jane@example.com"),
		testCommit("2222222", "Follow-up for DEF-45", "jane@example.com"),
	)

	result, err := p.Process(context.Background(), log, event)
	require.NoError(t, err)

	assert.Equal(t, &Result{Comments: 2, Failed: []string{"XYZ-1"}}, result)
	require.Len(t, tracker.commands, 2)
	assert.Equal(t, "ABC-123", tracker.commands[0].IssueID)
	assert.Equal(t, "DEF-45", tracker.commands[1].IssueID)

	require.Len(t, logHook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, logHook.LastEntry().Level)
	assert.Equal(t, "Couldn't comment on issue XYZ-1: error for [/issue/XYZ-1]: 404: Not Found", logHook.LastEntry().Message)
}

func TestProcessTransportError(t *testing.T) {
	tracker := newFakeTracker()
	tracker.issueErr = errors.New("connection refused")
	p, _ := newTestProcessor(t, testConfig(), tracker)

	_, err := p.Process(context.Background(), nil, testEvent(testCommit("1111111", "ABC-123", "jane@example.com")))
	assert.EqualError(t, err, "connection refused")
}

func TestProcessDialError(t *testing.T) {
	log, _ := test.NewNullLogger()
	p, err := New(log, testConfig(), func(context.Context) (Tracker, error) {
		return nil, errors.New("login failed")
	})
	require.NoError(t, err)

	_, err = p.Process(context.Background(), nil, testEvent(testCommit("1111111", "ABC-123", "jane@example.com")))
	assert.EqualError(t, err, "can not connect to tracker: login failed")
}

func TestProcessInvalidTimestamp(t *testing.T) {
	p, dials := newTestProcessor(t, testConfig(), newFakeTracker())

	commit := testCommit("1111111", "ABC-123", "jane@example.com")
	commit.Timestamp = "yesterday"

	_, err := p.Process(context.Background(), nil, testEvent(commit))
	assert.Error(t, err)
	assert.Equal(t, 0, *dials)
}

func TestCustomTemplate(t *testing.T) {
	tracker := newFakeTracker()
	cfg := testConfig()
	cfg.CommentTemplate = "{{ .UserName }} pushed {{ .Commit.ID }} to {{ .Repository.Name }} at {{ .Time.UTC.Format \"15:04\" }}"
	p, _ := newTestProcessor(t, cfg, tracker)

	_, err := p.Process(context.Background(), nil, testEvent(testCommit("1111111", "ABC-123", "jane@example.com")))
	require.NoError(t, err)

	require.Len(t, tracker.commands, 1)
	assert.Equal(t, "Jane Doe pushed 1111111 to githook at 12:27", tracker.commands[0].Options.Comment)
}
