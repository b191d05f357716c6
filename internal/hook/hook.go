package hook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/xperimental/githook/internal/config"
	"github.com/xperimental/githook/internal/data"
	"github.com/xperimental/githook/internal/youtrack"
)

// Tracker contains the tracker operations needed for commenting on issues.
type Tracker interface {
	GetUser(ctx context.Context, login string) (*youtrack.User, error)
	GetUsers(ctx context.Context, params url.Values) ([]*youtrack.User, error)
	GetIssue(ctx context.Context, id string) (*youtrack.Issue, error)
	ExecuteCommand(ctx context.Context, issueID, command string, opts youtrack.CommandOptions) error
}

// DialFunc opens a new tracker connection.
type DialFunc func(ctx context.Context) (Tracker, error)

// Result summarizes the processing of a push event.
type Result struct {
	Comments int
	// Failed lists the referenced issues that could not be commented on.
	Failed []string
}

// Processor turns push events into issue comments.
type Processor struct {
	log      logrus.FieldLogger
	cfg      config.Hook
	dial     DialFunc
	pattern  *regexp.Regexp
	template *template.Template
}

func New(log logrus.FieldLogger, cfg config.Hook, dial DialFunc) (*Processor, error) {
	if cfg.DefaultUser == "" {
		return nil, errors.New("defaultUser can not be empty")
	}

	if cfg.Command == "" {
		return nil, errors.New("command can not be empty")
	}

	pattern, err := regexp.Compile("(?m)" + cfg.IssuePattern)
	if err != nil {
		return nil, fmt.Errorf("can not parse issuePattern: %w", err)
	}

	tpl, err := loadTemplate(cfg.CommentTemplate)
	if err != nil {
		return nil, err
	}

	return &Processor{
		log:      log,
		cfg:      cfg,
		dial:     dial,
		pattern:  pattern,
		template: tpl,
	}, nil
}

// References returns the issue IDs mentioned in the message in order of appearance. When the
// pattern has a capture group, the first group is used as ID.
func (p *Processor) References(message string) []string {
	var refs []string
	for _, match := range p.pattern.FindAllStringSubmatch(message, -1) {
		if len(match) > 1 {
			refs = append(refs, match[1])
			continue
		}
		refs = append(refs, match[0])
	}

	return refs
}

// Process comments on every issue referenced by the commits of the event. The tracker connection
// is only opened when a commit references an issue. Failing issues are logged and skipped, other
// errors abort the processing.
func (p *Processor) Process(ctx context.Context, log logrus.FieldLogger, event *data.PushEvent) (*Result, error) {
	if log == nil {
		log = p.log
	}

	log.Debugf("Received push event by %s in branch %s on repository %s", event.UserName, event.Ref, event.Repository.URL)

	result := &Result{}
	var tracker Tracker
	for _, commit := range event.Commits {
		commitTime, err := commit.Time()
		if err != nil {
			return result, err
		}

		log.Debugf("Processing commit %s by %s (%s) in %s, committed %s", commit.ID, commit.Author.Name, commit.Author.Email, commit.URL, humanize.Time(commitTime))
		refs := p.References(commit.Message)
		if len(refs) == 0 {
			log.Debugf("Didn't find any referenced issues in commit %s", commit.ID)
			continue
		}
		log.Debugf("Found %d referenced issues in commit %s", len(refs), commit.ID)

		if tracker == nil {
			tracker, err = p.dial(ctx)
			if err != nil {
				return result, fmt.Errorf("can not connect to tracker: %w", err)
			}
		}

		login, err := p.resolveUser(ctx, log, tracker, commit.Author.Email)
		if err != nil {
			return result, err
		}

		comment, err := renderComment(p.template, commentData{
			UserName:   event.UserName,
			Repository: event.Repository,
			Ref:        event.Ref,
			Commit:     commit,
			Time:       commitTime,
		})
		if err != nil {
			return result, err
		}

		for _, id := range refs {
			log.Debugf("Processing reference to issue %s", id)
			err := p.commentIssue(ctx, tracker, id, comment, login)
			var ytErr *youtrack.Error
			switch {
			case errors.As(err, &ytErr):
				log.Warnf("Couldn't comment on issue %s: %s", id, err)
				result.Failed = append(result.Failed, id)
			case err != nil:
				return result, err
			default:
				result.Comments++
			}
		}
	}

	return result, nil
}

// resolveUser returns the login of the only user with the given email, or the default user's
// login if there is no such user or more than one.
func (p *Processor) resolveUser(ctx context.Context, log logrus.FieldLogger, tracker Tracker, email string) (string, error) {
	defaultUser, err := tracker.GetUser(ctx, p.cfg.DefaultUser)
	if err != nil {
		return "", fmt.Errorf("can not get default user %q: %w", p.cfg.DefaultUser, err)
	}

	users, err := tracker.GetUsers(ctx, url.Values{"q": {email}})
	if err != nil {
		return "", fmt.Errorf("can not search users: %w", err)
	}

	switch len(users) {
	case 0:
		log.Warnf("Couldn't find user with email address %s. Using default user.", email)
	case 1:
		return users[0].Login, nil
	default:
		log.Warnf("Found more than one user with email address %s. Using default user.", email)
	}

	return defaultUser.Login, nil
}

func (p *Processor) commentIssue(ctx context.Context, tracker Tracker, id, comment, login string) error {
	if _, err := tracker.GetIssue(ctx, id); err != nil {
		return err
	}

	return tracker.ExecuteCommand(ctx, id, p.cfg.Command, youtrack.CommandOptions{
		Comment: comment,
		RunAs:   login,
	})
}
