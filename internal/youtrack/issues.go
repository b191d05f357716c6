package youtrack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// GetIssue fetches a single issue by its ID, like "ABC-123".
func (c *Connection) GetIssue(ctx context.Context, id string) (*Issue, error) {
	el, err := c.get(ctx, "/issue/"+quote(id))
	if err != nil {
		return nil, err
	}

	return decodeIssue(el), nil
}

// NewIssue contains the parameters for creating an issue. Empty optional values are not sent.
type NewIssue struct {
	Project        string
	Summary        string
	Description    string
	Assignee       string
	Priority       string
	Type           string
	Subsystem      string
	State          string
	AffectsVersion string
	FixedVersion   string
	FixedInBuild   string
}

func (n NewIssue) query() url.Values {
	q := url.Values{
		"project":     {n.Project},
		"summary":     {n.Summary},
		"description": {n.Description},
	}
	optional := map[string]string{
		"assignee":       n.Assignee,
		"priority":       n.Priority,
		"type":           n.Type,
		"subsystem":      n.Subsystem,
		"state":          n.State,
		"affectsVersion": n.AffectsVersion,
		"fixVersion":     n.FixedVersion,
		"fixedInBuild":   n.FixedInBuild,
	}
	for name, value := range optional {
		if value != "" {
			q.Set(name, value)
		}
	}

	return q
}

// CreateIssue creates an issue. The location of the new issue is returned in the payload.
func (c *Connection) CreateIssue(ctx context.Context, issue NewIssue) (*Payload, error) {
	return c.do(ctx, http.MethodPut, withQuery("/issue", issue.query()), nil)
}

// GetIssues lists up to limit issues of a project matching filter, skipping the first after.
func (c *Connection) GetIssues(ctx context.Context, project, filter string, after, limit int) ([]*Issue, error) {
	query := url.Values{
		"after":  {strconv.Itoa(after)},
		"max":    {strconv.Itoa(limit)},
		"filter": {filter},
	}

	elements, err := c.getList(ctx, withQuery("/issue/byproject/"+quote(project), query))
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeIssue), nil
}

// GetIssueChanges returns the change history of an issue.
func (c *Connection) GetIssueChanges(ctx context.Context, id string) ([]*IssueChange, error) {
	el, err := c.get(ctx, "/issue/"+quote(id)+"/changes")
	if err != nil {
		return nil, err
	}

	return decodeAll(el.FindAll("change"), decodeIssueChange), nil
}

func (c *Connection) GetComments(ctx context.Context, id string) ([]*Comment, error) {
	elements, err := c.getList(ctx, "/issue/"+quote(id)+"/comment")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeComment), nil
}

func (c *Connection) GetAttachments(ctx context.Context, id string) ([]*Attachment, error) {
	elements, err := c.getList(ctx, "/issue/"+quote(id)+"/attachment")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeAttachment), nil
}

// GetAttachmentContent opens the content of an attachment. The URL is the one reported by the
// tracker, relative to its root. The caller has to close the returned reader.
func (c *Connection) GetAttachmentContent(ctx context.Context, attachmentURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+attachmentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("can not create request: %w", err)
	}

	for name, values := range c.header {
		req.Header[name] = values
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s: %w", attachmentURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, newError(attachmentURL, resp, body)
	}

	return resp.Body, nil
}

// Upload describes a file to attach to an issue.
type Upload struct {
	Name        string
	Content     io.Reader
	ContentType string
	AuthorLogin string
	Group       string
	// Created is a millisecond timestamp. When empty the creation time of the issue is used,
	// or the current time if the issue can not be fetched.
	Created string
}

// CreateAttachment attaches a file to an issue.
func (c *Connection) CreateAttachment(ctx context.Context, issueID string, upload Upload) (*Payload, error) {
	return c.upload(ctx, "/issue/", issueID, upload)
}

// ImportAttachment attaches a file to an issue using the import endpoint, which keeps the
// author and creation time.
func (c *Connection) ImportAttachment(ctx context.Context, issueID string, upload Upload) (*Payload, error) {
	return c.upload(ctx, "/import/", issueID, upload)
}

func (c *Connection) upload(ctx context.Context, prefix, issueID string, upload Upload) (*Payload, error) {
	query := url.Values{
		"authorLogin": {upload.AuthorLogin},
	}
	if upload.Group != "" {
		query.Set("group", upload.Group)
	}

	created := upload.Created
	if created == "" {
		created = c.issueCreated(ctx, issueID)
	}
	query.Set("created", created)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := createFormFile(writer, upload)
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(part, upload.Content); err != nil {
		return nil, fmt.Errorf("can not read attachment %q: %w", upload.Name, err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("can not finish attachment %q: %w", upload.Name, err)
	}

	c.log.Debugf("Uploading %q (%s) to %s", upload.Name, humanize.Bytes(uint64(body.Len())), issueID)
	resp, err := c.send(ctx, http.MethodPost, withQuery(prefix+quote(issueID)+"/attachment", query), writer.FormDataContentType(), body)
	if err != nil {
		return nil, err
	}

	return decodePayload(http.MethodPost, resp), nil
}

func (c *Connection) issueCreated(ctx context.Context, issueID string) string {
	issue, err := c.GetIssue(ctx, issueID)
	switch {
	case err != nil:
		c.log.Debugf("Can not get creation time of %s: %s", issueID, err)
	case issue.Created != "":
		return issue.Created
	}

	return FormatMillis(time.Now())
}

func createFormFile(writer *multipart.Writer, upload Upload) (io.Writer, error) {
	if upload.ContentType == "" {
		return writer.CreateFormFile(upload.Name, upload.Name)
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, upload.Name, upload.Name))
	header.Set("Content-Type", upload.ContentType)
	return writer.CreatePart(header)
}

// GetLinks returns the links of an issue. With outwardOnly set only links having the issue as
// their source are returned.
func (c *Connection) GetLinks(ctx context.Context, id string, outwardOnly bool) ([]*Link, error) {
	elements, err := c.getList(ctx, "/issue/"+quote(id)+"/link")
	if err != nil {
		return nil, err
	}

	links := make([]*Link, 0, len(elements))
	for _, el := range elements {
		link := decodeLink(el)
		if !outwardOnly || link.Source == id {
			links = append(links, link)
		}
	}

	return links, nil
}

// CommandOptions are the optional parameters of ExecuteCommand.
type CommandOptions struct {
	Comment string
	// Group restricts the visibility of the comment.
	Group string
	// RunAs is the login of the user the command is executed as.
	RunAs string
}

// ExecuteCommand applies a command, like "comment" or "Fixed", to an issue.
func (c *Connection) ExecuteCommand(ctx context.Context, issueID, command string, opts CommandOptions) error {
	query := url.Values{
		"command": {command},
	}
	if opts.Comment != "" {
		query.Set("comment", opts.Comment)
	}
	if opts.Group != "" {
		query.Set("group", opts.Group)
	}
	if opts.RunAs != "" {
		query.Set("runAs", opts.RunAs)
	}

	_, err := c.req(ctx, http.MethodPost, withQuery("/issue/"+quote(issueID)+"/execute", query), nil)
	return err
}

// IssueComments returns the comments embedded in the issue or fetches them.
func (c *Connection) IssueComments(ctx context.Context, issue *Issue) ([]*Comment, error) {
	if issue.Comments != nil {
		return issue.Comments, nil
	}

	return c.GetComments(ctx, issue.ID)
}

// IssueAttachments returns the attachments embedded in the issue or fetches them.
func (c *Connection) IssueAttachments(ctx context.Context, issue *Issue) ([]*Attachment, error) {
	if issue.Attachments != nil {
		return issue.Attachments, nil
	}

	return c.GetAttachments(ctx, issue.ID)
}

// IssueLinks returns the links embedded in the issue or fetches them.
func (c *Connection) IssueLinks(ctx context.Context, issue *Issue, outwardOnly bool) ([]*Link, error) {
	if issue.Links == nil {
		return c.GetLinks(ctx, issue.ID, outwardOnly)
	}

	if !outwardOnly {
		return issue.Links, nil
	}

	links := []*Link{}
	for _, l := range issue.Links {
		if l.Source == issue.ID {
			links = append(links, l)
		}
	}

	return links, nil
}
