package data

import (
	"fmt"
	"strings"
	"time"
)

// PushEvent describes one or more commits pushed to a branch of a repository.
type PushEvent struct {
	UserName   string     `json:"user_name"`
	Repository Repository `json:"repository"`
	Ref        string     `json:"ref"`
	Commits    []Commit   `json:"commits"`
}

type Repository struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Homepage string `json:"homepage"`
}

type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Commit struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Author    User   `json:"author"`
}

// timestampLayouts are tried in order when parsing a commit timestamp. The first one is the
// format sent by GitLab and GitHub, the others are written by git itself and older servers.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05Z07:00",
	time.RubyDate,
	time.UnixDate,
}

// Time parses the commit timestamp. RFC 3339 is expected, but the other layouts in
// timestampLayouts are accepted as well.
func (c Commit) Time() (time.Time, error) {
	ts := strings.TrimSpace(c.Timestamp)

	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, ts)
		if err == nil {
			return t, nil
		}

		if firstErr == nil {
			firstErr = err
		}
	}

	return time.Time{}, fmt.Errorf("can not parse timestamp %q of commit %s: %w", c.Timestamp, c.ID, firstErr)
}

// Validate checks that the fields needed for processing are present.
func (p *PushEvent) Validate() error {
	if p.Repository.Name == "" {
		return fmt.Errorf("push event without repository name")
	}

	for i, c := range p.Commits {
		if c.ID == "" {
			return fmt.Errorf("commit %d has no id", i)
		}
	}

	return nil
}
