package repository

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sirupsen/logrus"
	"github.com/xperimental/githook/internal/config"
	"github.com/xperimental/githook/internal/data"
)

var hashRegex = regexp.MustCompile("^[0-9a-f]{4,40}$")

// Repository builds push events from the history of a local repository.
type Repository struct {
	log  logrus.FieldLogger
	cfg  config.Replay
	repo *git.Repository
}

func New(log logrus.FieldLogger, cfg config.Replay) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("path can not be empty")
	}

	repo, err := git.PlainOpenWithOptions(cfg.Path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("can not open repository at %q: %w", cfg.Path, err)
	}
	log.Infof("Local repository path: %s", cfg.Path)

	return newRepository(log, cfg, repo), nil
}

func newRepository(log logrus.FieldLogger, cfg config.Replay, repo *git.Repository) *Repository {
	if cfg.Ref == "" {
		cfg.Ref = "HEAD"
	}

	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}

	return &Repository{
		log:  log,
		cfg:  cfg,
		repo: repo,
	}
}

// PushEvent returns a push event containing the configured number of commits reachable from the
// configured revision, oldest first.
func (r *Repository) PushEvent() (*data.PushEvent, error) {
	hash, err := r.resolveRef(r.cfg.Ref)
	if err != nil {
		return nil, fmt.Errorf("reference %q can not be resolved: %w", r.cfg.Ref, err)
	}
	r.log.Debugf("Reference %q resolved to commit %q", r.cfg.Ref, hash)

	iter, err := r.repo.Log(&git.LogOptions{From: *hash})
	if err != nil {
		return nil, fmt.Errorf("can not read history: %w", err)
	}
	defer iter.Close()

	var commits []*object.Commit
	for len(commits) < r.cfg.Limit {
		c, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating commits: %w", err)
		}

		commits = append(commits, c)
	}

	repoURL := r.originURL()
	event := &data.PushEvent{
		Repository: data.Repository{
			Name:     r.repositoryName(repoURL),
			URL:      repoURL,
			Homepage: r.cfg.Homepage,
		},
		Ref: r.refName(),
	}

	for i := len(commits) - 1; i >= 0; i-- {
		event.Commits = append(event.Commits, r.toCommit(commits[i]))
	}

	if len(commits) > 0 {
		event.UserName = commits[0].Committer.Name
	}

	return event, nil
}

func (r *Repository) toCommit(c *object.Commit) data.Commit {
	commit := data.Commit{
		ID:        c.Hash.String(),
		Message:   strings.TrimRight(c.Message, "\n"),
		Timestamp: c.Author.When.Format(time.RFC3339),
		Author: data.User{
			Name:  c.Author.Name,
			Email: c.Author.Email,
		},
	}

	if r.cfg.Homepage != "" {
		commit.URL = strings.TrimRight(r.cfg.Homepage, "/") + "/commit/" + commit.ID
	}

	return commit
}

func (r *Repository) originURL() string {
	remote, err := r.repo.Remote("origin")
	switch {
	case err == git.ErrRemoteNotFound:
		return ""
	case err != nil:
		r.log.Warnf("Can not look up remote: %s", err)
		return ""
	}

	if len(remote.Config().URLs) == 0 {
		return ""
	}

	return remote.Config().URLs[0]
}

// repositoryName uses the last path element of the remote URL or of the local path.
func (r *Repository) repositoryName(remoteURL string) string {
	if remoteURL != "" {
		name := path.Base(strings.TrimRight(remoteURL, "/"))
		if i := strings.LastIndex(name, ":"); i >= 0 {
			name = name[i+1:]
		}
		return strings.TrimSuffix(name, ".git")
	}

	if r.cfg.Path != "" {
		if abs, err := filepath.Abs(r.cfg.Path); err == nil {
			return filepath.Base(abs)
		}
	}

	return ""
}

// refName returns the full name of the replayed branch, or the revision if it is not a branch.
func (r *Repository) refName() string {
	if r.cfg.Ref == "HEAD" {
		head, err := r.repo.Head()
		if err == nil && head.Name().IsBranch() {
			return head.Name().String()
		}

		return r.cfg.Ref
	}

	branch := plumbing.NewBranchReferenceName(r.cfg.Ref)
	if _, err := r.repo.Reference(branch, true); err == nil {
		return branch.String()
	}

	return r.cfg.Ref
}

func (r *Repository) resolveRef(refName string) (*plumbing.Hash, error) {
	resolved, err := r.repo.ResolveRevision(plumbing.Revision(refName))
	if err == nil {
		return resolved, nil
	}

	if hashRegex.MatchString(refName) {
		commit, err := r.findCommit(refName)
		if err != nil {
			return nil, fmt.Errorf("can not find commit %q: %s", refName, err)
		}

		return commit, nil
	}

	return nil, fmt.Errorf("unknown reference: %s", refName)
}

func (r *Repository) findCommit(commitHash string) (*plumbing.Hash, error) {
	cIter, err := r.repo.CommitObjects()
	if err != nil {
		return nil, err
	}
	defer cIter.Close()

	candidates := []*plumbing.Hash{}
loop:
	for {
		c, err := cIter.Next()
		switch {
		case err == io.EOF:
			break loop
		case err != nil:
			return nil, err
		default:
		}

		if strings.HasPrefix(c.Hash.String(), commitHash) {
			hash := c.Hash
			candidates = append(candidates, &hash)
		}
	}

	num := len(candidates)
	if num == 0 {
		return nil, fmt.Errorf("commit not found: %s", commitHash)
	}

	if num > 1 {
		return nil, fmt.Errorf("commit %q is not unique. found %d candidates", commitHash, num)
	}

	return candidates[0], nil
}
