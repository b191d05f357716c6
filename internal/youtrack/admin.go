package youtrack

import (
	"encoding/xml"
	"strconv"
)

type User struct {
	Login    string
	FullName string
	Email    string
	Jabber   string
	URL      string

	Extra Fields
}

func decodeUser(el *Element) *User {
	r := newFieldReader(el)
	return &User{
		Login:    r.str("login"),
		FullName: r.str("fullName"),
		Email:    r.str("email"),
		Jabber:   r.str("jabber"),
		URL:      r.str("url"),
		Extra:    r.rest(),
	}
}

type Group struct {
	Name        string
	Description string
	URL         string
	AutoJoin    bool

	Extra Fields
}

func decodeGroup(el *Element) *Group {
	r := newFieldReader(el)
	return &Group{
		Name:        r.str("name"),
		Description: r.str("description"),
		URL:         r.str("url"),
		AutoJoin:    r.boolean("autoJoin"),
		Extra:       r.rest(),
	}
}

type Role struct {
	Name        string
	Description string
	URL         string

	Extra Fields
}

func decodeRole(el *Element) *Role {
	r := newFieldReader(el)
	return &Role{
		Name:        r.str("name"),
		Description: r.str("description"),
		URL:         r.str("url"),
		Extra:       r.rest(),
	}
}

// UserRole is a role granted to a group, optionally limited to some projects.
type UserRole struct {
	Name     string
	Projects []string
}

func decodeUserRole(el *Element) *UserRole {
	role := &UserRole{
		Name:     el.Attr("name"),
		Projects: []string{},
	}
	for _, p := range el.FindAll("projectRef") {
		role.Projects = append(role.Projects, p.Attr("id"))
	}

	return role
}

type userRoleXML struct {
	XMLName  xml.Name `xml:"userRole"`
	Name     string   `xml:"name,attr"`
	Projects struct {
		Refs []projectRefXML `xml:"projectRef"`
	} `xml:"projects"`
}

type projectRefXML struct {
	ID string `xml:"id,attr"`
	// The server rejects references without url but never reads it.
	URL string `xml:"url,attr"`
}

// MarshalXML writes the role in the format expected when granting it to a group.
func (r *UserRole) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := userRoleXML{Name: r.Name}
	for _, p := range r.Projects {
		v.Projects.Refs = append(v.Projects.Refs, projectRefXML{ID: p, URL: placeholderURL})
	}

	return e.Encode(v)
}

const placeholderURL = "unused"

type Permission struct {
	Name        string
	Description string

	Extra Fields
}

func decodePermission(el *Element) *Permission {
	r := newFieldReader(el)
	return &Permission{
		Name:        r.str("name"),
		Description: r.str("description"),
		Extra:       r.rest(),
	}
}

type Project struct {
	ID             string
	ShortName      string
	Name           string
	Description    string
	Lead           string
	StartingNumber int

	Extra Fields
}

func decodeProject(el *Element) *Project {
	r := newFieldReader(el)
	p := &Project{
		ID:          r.str("id"),
		ShortName:   r.str("shortName"),
		Name:        r.str("name"),
		Description: r.str("description"),
		Lead:        r.str("lead"),
	}
	p.StartingNumber, _ = strconv.Atoi(r.str("startingNumber"))
	p.Extra = r.rest()

	return p
}

type Subsystem struct {
	Name            string
	IsDefault       bool
	DefaultAssignee string

	Extra Fields
}

func decodeSubsystem(el *Element) *Subsystem {
	r := newFieldReader(el)
	s := &Subsystem{
		Name:            r.str("name"),
		IsDefault:       r.boolean("isDefault"),
		DefaultAssignee: r.str("defaultAssignee"),
		Extra:           r.rest(),
	}
	if s.DefaultAssignee == noUser {
		s.DefaultAssignee = ""
	}

	return s
}

type Version struct {
	Name        string
	Description string
	ReleaseDate string
	IsReleased  bool
	IsArchived  bool

	Extra Fields
}

func decodeVersion(el *Element) *Version {
	r := newFieldReader(el)
	return &Version{
		Name:        r.str("name"),
		Description: r.str("description"),
		ReleaseDate: r.str("releaseDate"),
		IsReleased:  r.boolean("isReleased"),
		IsArchived:  r.boolean("isArchived"),
		Extra:       r.rest(),
	}
}

type IssueLinkType struct {
	Name        string
	OutwardName string
	InwardName  string
	Directed    bool

	Extra Fields
}

func decodeIssueLinkType(el *Element) *IssueLinkType {
	r := newFieldReader(el)
	return &IssueLinkType{
		Name:        r.str("name"),
		OutwardName: r.str("outwardName"),
		InwardName:  r.str("inwardName"),
		Directed:    r.boolean("directed"),
		Extra:       r.rest(),
	}
}

// CustomField is a global custom field definition.
type CustomField struct {
	Name               string
	Type               string
	IsPrivate          bool
	VisibleByDefault   bool
	AutoAttached       bool
	DefaultBundle      string
	AttachBundlePolicy string

	Extra Fields
}

func decodeCustomField(el *Element) *CustomField {
	r := newFieldReader(el)
	return &CustomField{
		Name:               r.str("name"),
		Type:               r.str("type"),
		IsPrivate:          r.boolean("isPrivate"),
		VisibleByDefault:   r.boolean("visibleByDefault"),
		AutoAttached:       r.boolean("autoAttached"),
		DefaultBundle:      r.str("defaultBundle"),
		AttachBundlePolicy: r.str("attachBundlePolicy"),
		Extra:              r.rest(),
	}
}

// ProjectCustomField is a custom field attached to a project.
type ProjectCustomField struct {
	Name      string
	EmptyText string
	URL       string
	Params    map[string]string

	Extra Fields
}

func decodeProjectCustomField(el *Element) *ProjectCustomField {
	pcf := &ProjectCustomField{
		Name:      el.Attr("name"),
		EmptyText: el.Attr("emptyText"),
		URL:       el.Attr("url"),
		Params:    map[string]string{},
		Extra:     Fields{},
	}
	for _, a := range el.Attrs {
		switch a.Name.Local {
		case "name", "emptyText", "url":
		default:
			pcf.Extra[a.Name.Local] = []string{a.Value}
		}
	}

	for _, p := range el.FindAll("param") {
		pcf.Params[p.Attr("name")] = p.Attr("value")
	}

	return pcf
}

// TimeTrackingSettings are the time tracking settings of a project.
type TimeTrackingSettings struct {
	Enabled        bool
	EstimateField  string
	TimeSpentField string
}

func decodeTimeTrackingSettings(el *Element) *TimeTrackingSettings {
	s := &TimeTrackingSettings{
		Enabled: el.Attr("enabled") == "true",
	}
	if e := el.Child("estimation"); e != nil {
		s.EstimateField = e.Attr("name")
	}
	if e := el.Child("spentTime"); e != nil {
		s.TimeSpentField = e.Attr("name")
	}

	return s
}

// GlobalTimeTrackingSettings are the server wide time tracking settings.
type GlobalTimeTrackingSettings struct {
	DaysAWeek int
	HoursADay int
}

func decodeGlobalTimeTrackingSettings(el *Element) *GlobalTimeTrackingSettings {
	s := &GlobalTimeTrackingSettings{}
	if e := el.Child("daysAWeek"); e != nil {
		s.DaysAWeek, _ = strconv.Atoi(e.Text)
	}
	if e := el.Child("hoursADay"); e != nil {
		s.HoursADay, _ = strconv.Atoi(e.Text)
	}

	return s
}
