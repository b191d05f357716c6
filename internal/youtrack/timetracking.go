package youtrack

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
)

type workItemXML struct {
	XMLName     xml.Name   `xml:"workItem"`
	Date        string     `xml:"date"`
	Duration    string     `xml:"duration"`
	Description string     `xml:"description,omitempty"`
	Author      *authorXML `xml:"author"`
}

type authorXML struct {
	Login string `xml:"login,attr"`
}

type workItemsXML struct {
	XMLName xml.Name      `xml:"workItems"`
	Items   []workItemXML `xml:"workItem"`
}

func (c *Connection) GetWorkItems(ctx context.Context, issueID string) ([]*WorkItem, error) {
	elements, err := c.getList(ctx, "/issue/"+quote(issueID)+"/timetracking/workitem")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeWorkItem), nil
}

// CreateWorkItem records time spent on an issue as the current user.
func (c *Connection) CreateWorkItem(ctx context.Context, issueID string, item *WorkItem) error {
	body, err := xml.Marshal(workItemXML{
		Date:        item.Date,
		Duration:    item.Duration,
		Description: item.Description,
	})
	if err != nil {
		return fmt.Errorf("can not encode work item: %w", err)
	}

	_, err = c.req(ctx, http.MethodPost, "/issue/"+quote(issueID)+"/timetracking/workitem", body)
	return err
}

// ImportWorkItems imports work items keeping their authors. Nothing is sent for an empty list.
func (c *Connection) ImportWorkItems(ctx context.Context, issueID string, items []*WorkItem) error {
	if len(items) == 0 {
		return nil
	}

	doc := workItemsXML{}
	for _, item := range items {
		doc.Items = append(doc.Items, workItemXML{
			Date:        item.Date,
			Duration:    item.Duration,
			Description: item.Description,
			Author:      &authorXML{Login: item.AuthorLogin},
		})
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("can not encode work items: %w", err)
	}

	_, err = c.req(ctx, http.MethodPut, "/import/issue/"+quote(issueID)+"/workitems", body)
	return err
}

// GetGlobalTimeTrackingSettings returns nil settings when the tracker does not support time
// tracking.
func (c *Connection) GetGlobalTimeTrackingSettings(ctx context.Context) (*GlobalTimeTrackingSettings, error) {
	el, err := c.get(ctx, "/admin/timetracking")
	switch {
	case IsNotFound(err):
		return nil, nil
	case err != nil:
		return nil, err
	}

	return decodeGlobalTimeTrackingSettings(el), nil
}

// SetGlobalTimeTrackingSettings updates the length of a working week. Zero values are left
// unchanged.
func (c *Connection) SetGlobalTimeTrackingSettings(ctx context.Context, settings GlobalTimeTrackingSettings) error {
	doc := struct {
		XMLName   xml.Name `xml:"timesettings"`
		DaysAWeek string   `xml:"daysAWeek,omitempty"`
		HoursADay string   `xml:"hoursADay,omitempty"`
	}{}
	if settings.DaysAWeek > 0 {
		doc.DaysAWeek = strconv.Itoa(settings.DaysAWeek)
	}
	if settings.HoursADay > 0 {
		doc.HoursADay = strconv.Itoa(settings.HoursADay)
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("can not encode time tracking settings: %w", err)
	}

	_, err = c.req(ctx, http.MethodPut, "/admin/timetracking", body)
	return err
}

// GetProjectTimeTrackingSettings returns nil settings when the tracker does not support time
// tracking.
func (c *Connection) GetProjectTimeTrackingSettings(ctx context.Context, projectID string) (*TimeTrackingSettings, error) {
	el, err := c.get(ctx, "/admin/project/"+quote(projectID)+"/timetracking")
	switch {
	case IsNotFound(err):
		return nil, nil
	case err != nil:
		return nil, err
	}

	return decodeTimeTrackingSettings(el), nil
}

type fieldRefXML struct {
	Name string `xml:"name,attr"`
}

func (c *Connection) SetProjectTimeTrackingSettings(ctx context.Context, projectID string, settings TimeTrackingSettings) error {
	doc := struct {
		XMLName    xml.Name     `xml:"settings"`
		Enabled    bool         `xml:"enabled,attr"`
		Estimation *fieldRefXML `xml:"estimation"`
		SpentTime  *fieldRefXML `xml:"spentTime"`
	}{
		Enabled: settings.Enabled,
	}
	if settings.EstimateField != "" {
		doc.Estimation = &fieldRefXML{Name: settings.EstimateField}
	}
	if settings.TimeSpentField != "" {
		doc.SpentTime = &fieldRefXML{Name: settings.TimeSpentField}
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("can not encode time tracking settings: %w", err)
	}

	_, err = c.req(ctx, http.MethodPut, "/admin/project/"+quote(projectID)+"/timetracking", body)
	return err
}
