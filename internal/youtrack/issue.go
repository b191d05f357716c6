package youtrack

import (
	"strconv"
	"strings"
	"time"
)

// Issue is an issue of the tracker.
type Issue struct {
	ID               string
	EntityID         string
	ProjectShortName string
	NumberInProject  string
	Summary          string
	Description      string
	Created          string
	Updated          string
	Resolved         string
	ReporterName     string
	UpdaterName      string
	AssigneeName     string
	Priority         string
	Type             string
	State            string
	Subsystem        string
	FixedVersions    []string
	AffectsVersions  []string
	FixedInBuild     string

	// Links, Attachments and Comments are nil unless the issue response embedded them.
	Links       []*Link
	Attachments []*Attachment
	Comments    []*Comment

	Extra Fields
}

func decodeIssue(el *Element) *Issue {
	r := newFieldReader(el)
	issue := &Issue{
		ID:               r.str("id"),
		EntityID:         r.str("entityId"),
		ProjectShortName: r.str("projectShortName"),
		NumberInProject:  r.str("numberInProject"),
		Summary:          r.str("summary"),
		Description:      r.str("description"),
		Created:          r.str("created"),
		Updated:          r.str("updated"),
		Resolved:         r.str("resolved"),
		ReporterName:     r.str("reporterName"),
		UpdaterName:      r.str("updaterName"),
		AssigneeName:     r.str("assigneeName"),
		Priority:         r.str("priority"),
		Type:             r.str("type"),
		State:            r.str("state"),
		Subsystem:        r.str("subsystem"),
		FixedVersions:    normalizeMultiple(r.list("fixedVersion")),
		AffectsVersions:  normalizeMultiple(r.list("affectsVersion")),
		FixedInBuild:     r.str("fixedInBuild"),
	}
	if issue.FixedInBuild == "Next build" {
		issue.FixedInBuild = ""
	}

	if el.Child("links") != nil {
		issue.Links = []*Link{}
		for _, l := range el.FindAll("issueLink") {
			issue.Links = append(issue.Links, decodeLink(l))
		}
	}

	if el.Child("attachments") != nil {
		issue.Attachments = []*Attachment{}
		for _, a := range el.FindAll("fileUrl") {
			issue.Attachments = append(issue.Attachments, decodeAttachment(a))
		}
	}

	if comments := el.FindAll("comment"); len(comments) > 0 {
		issue.Comments = make([]*Comment, len(comments))
		for i, c := range comments {
			issue.Comments[i] = decodeComment(c)
		}
	}

	issue.Extra = r.rest()
	return issue
}

// normalizeMultiple splits a single comma separated value into a list.
func normalizeMultiple(values []string) []string {
	if len(values) != 1 {
		return values
	}

	if values[0] == "" {
		return nil
	}

	parts := strings.Split(values[0], ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}

	return parts
}

// CreatedTime returns the creation time of the issue.
func (i *Issue) CreatedTime() (time.Time, error) {
	return ParseMillis(i.Created)
}

// HasAssignee reports whether the issue is assigned.
func (i *Issue) HasAssignee() bool {
	return i.AssigneeName != ""
}

// Fields returns all fields of the issue, known and extra, as used for importing.
func (i *Issue) Fields() Fields {
	f := Fields{}
	for name, values := range i.Extra {
		f.set(name, values...)
	}

	f.setNonEmpty("id", i.ID)
	f.setNonEmpty("entityId", i.EntityID)
	f.setNonEmpty("projectShortName", i.ProjectShortName)
	f.setNonEmpty("numberInProject", i.NumberInProject)
	f.setNonEmpty("summary", i.Summary)
	f.setNonEmpty("description", i.Description)
	f.setNonEmpty("created", i.Created)
	f.setNonEmpty("updated", i.Updated)
	f.setNonEmpty("resolved", i.Resolved)
	f.setNonEmpty("reporterName", i.ReporterName)
	f.setNonEmpty("updaterName", i.UpdaterName)
	f.setNonEmpty("assigneeName", i.AssigneeName)
	f.setNonEmpty("priority", i.Priority)
	f.setNonEmpty("type", i.Type)
	f.setNonEmpty("state", i.State)
	f.setNonEmpty("subsystem", i.Subsystem)
	f.set("fixedVersion", i.FixedVersions...)
	f.set("affectsVersion", i.AffectsVersions...)
	f.setNonEmpty("fixedInBuild", i.FixedInBuild)

	return f
}

// Comment is a comment on an issue.
type Comment struct {
	ID             string
	Author         string
	AuthorFullName string
	IssueID        string
	ParentID       string
	Text           string
	Created        string
	Updated        string
	PermittedGroup string
	Deleted        bool

	Extra Fields
}

func decodeComment(el *Element) *Comment {
	r := newFieldReader(el)
	return &Comment{
		ID:             r.str("id"),
		Author:         r.str("author"),
		AuthorFullName: r.str("authorFullName"),
		IssueID:        r.str("issueId"),
		ParentID:       r.str("parentId"),
		Text:           r.str("text"),
		Created:        r.str("created"),
		Updated:        r.str("updated"),
		PermittedGroup: r.str("permittedGroup"),
		Deleted:        r.boolean("deleted"),
		Extra:          r.rest(),
	}
}

// attrs returns the comment as attributes of an import <comment> element.
func (c *Comment) attrs() Fields {
	f := Fields{}
	for name, values := range c.Extra {
		f.set(name, values...)
	}
	f.setNonEmpty("id", c.ID)
	f.setNonEmpty("author", c.Author)
	f.setNonEmpty("authorFullName", c.AuthorFullName)
	f.setNonEmpty("issueId", c.IssueID)
	f.setNonEmpty("parentId", c.ParentID)
	f.setNonEmpty("text", c.Text)
	f.setNonEmpty("created", c.Created)
	f.setNonEmpty("updated", c.Updated)
	f.setNonEmpty("permittedGroup", c.PermittedGroup)

	return f
}

// Link connects two issues.
type Link struct {
	TypeName    string
	Source      string
	Target      string
	TypeInward  string
	TypeOutward string

	Extra Fields
}

func decodeLink(el *Element) *Link {
	r := newFieldReader(el)
	return &Link{
		TypeName:    r.str("typeName"),
		Source:      r.str("source"),
		Target:      r.str("target"),
		TypeInward:  r.str("typeInward"),
		TypeOutward: r.str("typeOutward"),
		Extra:       r.rest(),
	}
}

// Equal compares links by type, source and target.
func (l *Link) Equal(other *Link) bool {
	return other != nil && l.TypeName == other.TypeName && l.Source == other.Source && l.Target == other.Target
}

// Attachment is a file attached to an issue.
type Attachment struct {
	ID          string
	Name        string
	URL         string
	AuthorLogin string
	Group       string
	Created     string

	Extra Fields
}

func decodeAttachment(el *Element) *Attachment {
	r := newFieldReader(el)
	a := &Attachment{
		ID:          r.str("id"),
		Name:        r.str("name"),
		URL:         r.str("url"),
		AuthorLogin: r.str("authorLogin"),
		Group:       r.str("group"),
		Created:     r.str("created"),
		Extra:       r.rest(),
	}
	if a.AuthorLogin == noUser {
		a.AuthorLogin = ""
	}

	return a
}

const noUser = "<no user>"

// IssueChange is one entry of an issue's change history.
type IssueChange struct {
	Updated     int64
	UpdaterName string
	Fields      []*ChangeField
	Comments    []string
}

// ChangeField lists the old and new values of a changed field.
type ChangeField struct {
	Name     string
	OldValue []string
	NewValue []string
}

func decodeIssueChange(el *Element) *IssueChange {
	change := &IssueChange{}
	for _, field := range el.FindAll("field") {
		name := field.Attr("name")
		switch name {
		case "updated":
			if v := field.Child("value"); v != nil {
				change.Updated, _ = strconv.ParseInt(v.Text, 10, 64)
			}
		case "updaterName":
			if v := field.Child("value"); v != nil {
				change.UpdaterName = v.Text
			}
		case "links":
		default:
			cf := &ChangeField{Name: name}
			for _, v := range field.FindAll("oldValue") {
				cf.OldValue = append(cf.OldValue, v.Text)
			}
			for _, v := range field.FindAll("newValue") {
				cf.NewValue = append(cf.NewValue, v.Text)
			}
			change.Fields = append(change.Fields, cf)
		}
	}

	for _, c := range el.FindAll("comment") {
		change.Comments = append(change.Comments, c.Attr("text"))
	}

	return change
}

// WorkItem is a time tracking record of an issue.
type WorkItem struct {
	ID          string
	URL         string
	Date        string
	Duration    string
	Description string
	AuthorLogin string

	Extra Fields
}

func decodeWorkItem(el *Element) *WorkItem {
	w := &WorkItem{
		ID:    el.Attr("id"),
		URL:   el.Attr("url"),
		Extra: Fields{},
	}

	for _, c := range el.Children {
		switch c.XMLName.Local {
		case "author":
			w.AuthorLogin = c.Attr("login")
		case "date":
			w.Date = c.Text
		case "duration":
			w.Duration = c.Text
		case "description":
			w.Description = c.Text
		default:
			w.Extra[c.XMLName.Local] = []string{c.Text}
		}
	}

	return w
}
