package youtrack

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// readOnlyIssueFields are never sent when importing issues.
var readOnlyIssueFields = map[string]bool{
	"id":                true,
	"projectShortName":  true,
	"votes":             true,
	"commentsCount":     true,
	"historyUpdated":    true,
	"updatedByFullName": true,
	"updaterFullName":   true,
	"reporterFullName":  true,
	"links":             true,
	"attachments":       true,
	"jiraId":            true,
}

// ImportResult is the tracker's report of an issue import.
type ImportResult struct {
	Items []ImportItem
	// Raw is the unparsed report.
	Raw []byte
}

// ImportItem reports the import of a single issue.
type ImportItem struct {
	ID       string
	Imported bool
	// Message contains the report of a failed import.
	Message string
}

// Failed returns the items that were not imported.
func (r *ImportResult) Failed() []ImportItem {
	var failed []ImportItem
	for _, item := range r.Items {
		if !item.Imported {
			failed = append(failed, item)
		}
	}

	return failed
}

// ImportIssuesXML imports issues from a prepared <issues> document.
func (c *Connection) ImportIssuesXML(ctx context.Context, projectID, assigneeGroup string, body []byte) (*Payload, error) {
	return c.do(ctx, http.MethodPut, importIssuesPath(projectID, assigneeGroup), body, http.StatusBadRequest)
}

func importIssuesPath(projectID, assigneeGroup string) string {
	return withQuery("/import/"+quote(projectID)+"/issues", url.Values{"assigneeGroup": {assigneeGroup}})
}

// ImportIssues imports issues into a project. Read-only fields and the project's time spent field
// are skipped, embedded comments are imported with their issue. When the tracker does not answer
// with a report the issues are imported one by one.
func (c *Connection) ImportIssues(ctx context.Context, projectID, assigneeGroup string, issues []*Issue) (*ImportResult, error) {
	if len(issues) == 0 {
		return &ImportResult{}, nil
	}

	skip := make(map[string]bool, len(readOnlyIssueFields)+1)
	for name := range readOnlyIssueFields {
		skip[name] = true
	}

	settings, err := c.GetProjectTimeTrackingSettings(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if settings != nil && settings.Enabled && settings.TimeSpentField != "" {
		skip[settings.TimeSpentField] = true
	}

	body, err := encodeIssues(issues, skip)
	if err != nil {
		return nil, err
	}

	payload, err := c.ImportIssuesXML(ctx, projectID, assigneeGroup, body)
	if err != nil {
		return nil, err
	}

	if payload.XML == nil {
		if len(issues) == 1 {
			return nil, fmt.Errorf("can not parse import report for %s: %q", projectID, payload.Raw)
		}

		c.log.Warnf("Import report for %s not readable, importing %d issues one by one", projectID, len(issues))
		result := &ImportResult{}
		for _, issue := range issues {
			single, err := c.ImportIssues(ctx, projectID, assigneeGroup, []*Issue{issue})
			if err != nil {
				return nil, err
			}
			result.Items = append(result.Items, single.Items...)
			result.Raw = append(result.Raw, single.Raw...)
		}

		return result, nil
	}

	result := &ImportResult{Raw: payload.Raw}
	for _, item := range payload.XML.FindAll("item") {
		imported := ImportItem{
			ID:       item.Attr("id"),
			Imported: strings.EqualFold(item.Attr("imported"), "true"),
		}
		if !imported.Imported {
			imported.Message = item.String()
			c.log.Warnf("Failed to import issue %s-%s: %s", projectID, imported.ID, imported.Message)
		}
		result.Items = append(result.Items, imported)
	}

	if len(result.Items) != len(issues) {
		c.log.Warnf("Import report for %s lists %d of %d issues", projectID, len(result.Items), len(issues))
	}

	return result, nil
}

func encodeIssues(issues []*Issue, skip map[string]bool) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := xml.NewEncoder(buf)

	root := xml.StartElement{Name: xml.Name{Local: "issues"}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	for _, issue := range issues {
		if err := encodeIssue(enc, issue, skip); err != nil {
			return nil, fmt.Errorf("can not encode issue %s: %w", issue.ID, err)
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}

	if err := enc.Flush(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func encodeIssue(enc *xml.Encoder, issue *Issue, skip map[string]bool) error {
	start := xml.StartElement{Name: xml.Name{Local: "issue"}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	fields := issue.Fields()
	for _, name := range fields.Names() {
		if skip[name] {
			continue
		}

		field := xml.StartElement{
			Name: xml.Name{Local: "field"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: name}},
		}
		if err := enc.EncodeToken(field); err != nil {
			return err
		}

		for _, value := range fields.Values(name) {
			if err := encodeTextElement(enc, "value", nil, strings.TrimSpace(value)); err != nil {
				return err
			}
		}

		if err := enc.EncodeToken(field.End()); err != nil {
			return err
		}
	}

	for _, comment := range issue.Comments {
		if err := encodeTextElement(enc, "comment", comment.attrs(), ""); err != nil {
			return err
		}
	}

	return enc.EncodeToken(start.End())
}

// ImportLinks imports links between issues. The inward and outward names of the link type are
// not sent.
func (c *Connection) ImportLinks(ctx context.Context, links []*Link) (*Payload, error) {
	buf := &bytes.Buffer{}
	enc := xml.NewEncoder(buf)

	root := xml.StartElement{Name: xml.Name{Local: "list"}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	for _, l := range links {
		attrs := Fields{}
		for name, values := range l.Extra {
			attrs.set(name, values...)
		}
		attrs.setNonEmpty("typeName", l.TypeName)
		attrs.setNonEmpty("source", l.Source)
		attrs.setNonEmpty("target", l.Target)

		if err := encodeTextElement(enc, "link", attrs, ""); err != nil {
			return nil, err
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}

	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("can not encode links: %w", err)
	}

	return c.do(ctx, http.MethodPut, "/import/links", buf.Bytes(), http.StatusBadRequest)
}

// ExportIssueLinks returns all links between issues.
func (c *Connection) ExportIssueLinks(ctx context.Context) ([]*Link, error) {
	elements, err := c.getList(ctx, "/export/links")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeLink), nil
}

func (c *Connection) GetIssueLinkTypes(ctx context.Context) ([]*IssueLinkType, error) {
	el, err := c.get(ctx, "/admin/issueLinkType")
	if err != nil {
		return nil, err
	}

	return decodeAll(el.FindAll("issueLinkType"), decodeIssueLinkType), nil
}

func (c *Connection) CreateIssueLinkType(ctx context.Context, linkType *IssueLinkType) (*Payload, error) {
	query := url.Values{
		"outwardName": {linkType.OutwardName},
		"inwardName":  {linkType.InwardName},
		"directed":    {fmt.Sprint(linkType.Directed)},
	}

	return c.put(ctx, withQuery("/admin/issueLinkType/"+quote(linkType.Name), query))
}
