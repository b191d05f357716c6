package youtrack

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// GetProjects maps the short name of every project to its name.
func (c *Connection) GetProjects(ctx context.Context) (map[string]string, error) {
	elements, err := c.getList(ctx, "/project/all")
	if err != nil {
		return nil, err
	}

	projects := make(map[string]string, len(elements))
	for _, el := range elements {
		projects[el.Attr("shortName")] = el.Attr("name")
	}

	return projects, nil
}

func (c *Connection) GetProject(ctx context.Context, id string) (*Project, error) {
	el, err := c.get(ctx, "/admin/project/"+quote(id))
	if err != nil {
		return nil, err
	}

	return decodeProject(el), nil
}

func (c *Connection) GetProjectIDs(ctx context.Context) ([]string, error) {
	elements, err := c.getList(ctx, "/admin/project/")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(elements))
	for _, el := range elements {
		ids = append(ids, el.Attr("id"))
	}

	return ids, nil
}

func (c *Connection) GetProjectAssigneeGroups(ctx context.Context, id string) ([]*Group, error) {
	elements, err := c.getList(ctx, "/admin/project/"+quote(id)+"/assignee/group")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeGroup), nil
}

// CreateProject creates a project. A zero starting number starts at 1.
func (c *Connection) CreateProject(ctx context.Context, project *Project) (*Payload, error) {
	startingNumber := project.StartingNumber
	if startingNumber == 0 {
		startingNumber = 1
	}

	query := url.Values{
		"projectName": {project.Name},
		// The tracker rejects empty descriptions.
		"description":      {project.Description + " "},
		"projectLeadLogin": {project.Lead},
		"lead":             {project.Lead},
		"startingNumber":   {strconv.Itoa(startingNumber)},
	}

	return c.put(ctx, withQuery("/admin/project/"+quote(project.ID), query))
}

func (c *Connection) DeleteProject(ctx context.Context, id string) error {
	return c.delete(ctx, "/admin/project/"+quote(id))
}

func (c *Connection) GetSubsystem(ctx context.Context, projectID, name string) (*Subsystem, error) {
	el, err := c.get(ctx, "/admin/project/"+quote(projectID)+"/subsystem/"+quote(name))
	if err != nil {
		return nil, err
	}

	return decodeSubsystem(el), nil
}

func (c *Connection) GetSubsystems(ctx context.Context, projectID string) ([]*Subsystem, error) {
	elements, err := c.getList(ctx, "/admin/project/"+quote(projectID)+"/subsystem")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeSubsystem), nil
}

func (c *Connection) GetVersion(ctx context.Context, projectID, name string) (*Version, error) {
	el, err := c.get(ctx, "/admin/project/"+quote(projectID)+"/version/"+quote(name))
	if err != nil {
		return nil, err
	}

	return decodeVersion(el), nil
}

// GetVersions lists the versions of a project, released ones included. The listing only contains
// names, so every version is fetched on its own.
func (c *Connection) GetVersions(ctx context.Context, projectID string) ([]*Version, error) {
	el, err := c.get(ctx, "/admin/project/"+quote(projectID)+"/version?showReleased=true")
	if err != nil {
		return nil, err
	}

	var versions []*Version
	for _, v := range el.FindAll("version") {
		version, err := c.GetVersion(ctx, projectID, v.Attr("name"))
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	return versions, nil
}

func (c *Connection) GetBuilds(ctx context.Context, projectID string) ([]*BundleElement, error) {
	elements, err := c.getList(ctx, "/admin/project/"+quote(projectID)+"/build")
	if err != nil {
		return nil, err
	}

	builds := make([]*BundleElement, 0, len(elements))
	for _, el := range elements {
		builds = append(builds, decodeBundleElement(BuildFieldType, el))
	}

	return builds, nil
}

func (c *Connection) GetCustomField(ctx context.Context, name string) (*CustomField, error) {
	el, err := c.get(ctx, "/admin/customfield/field/"+quote(name))
	if err != nil {
		return nil, err
	}

	return decodeCustomField(el), nil
}

// GetCustomFields fetches every global custom field with its full definition.
func (c *Connection) GetCustomFields(ctx context.Context) ([]*CustomField, error) {
	elements, err := c.getList(ctx, "/admin/customfield/field")
	if err != nil {
		return nil, err
	}

	fields := make([]*CustomField, 0, len(elements))
	for _, el := range elements {
		field, err := c.GetCustomField(ctx, el.Attr("name"))
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}

	return fields, nil
}

func (c *Connection) CreateCustomField(ctx context.Context, field *CustomField) (*Payload, error) {
	query := url.Values{
		"type":              {field.Type},
		"isPrivate":         {strconv.FormatBool(field.IsPrivate)},
		"defaultVisibility": {strconv.FormatBool(field.VisibleByDefault)},
		"autoAttached":      {strconv.FormatBool(field.AutoAttached)},
	}
	if field.DefaultBundle != "" {
		query.Set("defaultBundle", field.DefaultBundle)
	}
	if field.AttachBundlePolicy != "" {
		query.Set("attachBundlePolicy", field.AttachBundlePolicy)
	}

	return c.put(ctx, withQuery("/admin/customfield/field/"+quote(field.Name), query))
}

func (c *Connection) GetProjectCustomField(ctx context.Context, projectID, name string) (*ProjectCustomField, error) {
	el, err := c.get(ctx, "/admin/project/"+quote(projectID)+"/customfield/"+quote(name))
	if err != nil {
		return nil, err
	}

	return decodeProjectCustomField(el), nil
}

// GetProjectCustomFields fetches every custom field attached to the project.
func (c *Connection) GetProjectCustomFields(ctx context.Context, projectID string) ([]*ProjectCustomField, error) {
	el, err := c.get(ctx, "/admin/project/"+quote(projectID)+"/customfield")
	if err != nil {
		return nil, err
	}

	var fields []*ProjectCustomField
	for _, f := range el.FindAll("projectCustomField") {
		field, err := c.GetProjectCustomField(ctx, projectID, f.Attr("name"))
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}

	return fields, nil
}

// CreateProjectCustomField attaches a custom field to a project. An empty EmptyText becomes
// "No <name>".
func (c *Connection) CreateProjectCustomField(ctx context.Context, projectID string, field *ProjectCustomField) (*Payload, error) {
	emptyText := field.EmptyText
	if strings.TrimSpace(emptyText) == "" {
		emptyText = "No " + field.Name
	}

	query := url.Values{}
	for name, value := range field.Params {
		query.Set(name, value)
	}
	query.Set("emptyFieldText", emptyText)

	return c.put(ctx, withQuery("/admin/project/"+quote(projectID)+"/customfield/"+quote(field.Name), query))
}

func (c *Connection) DeleteProjectCustomField(ctx context.Context, projectID, name string) error {
	return c.delete(ctx, "/admin/project/"+quote(projectID)+"/customfield/"+quote(name))
}
