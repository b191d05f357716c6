package youtrack

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// usersPageSize is the number of users the tracker returns per page.
const usersPageSize = 10

func (c *Connection) GetUser(ctx context.Context, login string) (*User, error) {
	el, err := c.get(ctx, "/admin/user/"+quote(login))
	if err != nil {
		return nil, err
	}

	return decodeUser(el), nil
}

// GetUsers searches users, for example with the query parameter "q". All pages are fetched
// until the tracker returns an empty one.
func (c *Connection) GetUsers(ctx context.Context, params url.Values) ([]*User, error) {
	users := []*User{}
	for start := 0; ; start += usersPageSize {
		query := url.Values{}
		for k, v := range params {
			query[k] = v
		}
		query.Set("start", strconv.Itoa(start))

		elements, err := c.getList(ctx, withQuery("/admin/user/", query))
		if err != nil {
			return nil, err
		}

		if len(elements) == 0 {
			return users, nil
		}

		users = append(users, decodeAll(elements, decodeUser)...)
	}
}

func (c *Connection) DeleteUser(ctx context.Context, login string) error {
	return c.delete(ctx, "/admin/user/"+quote(login))
}

// CreateUser creates a single user through the import endpoint.
func (c *Connection) CreateUser(ctx context.Context, user *User) (*Payload, error) {
	return c.ImportUsers(ctx, []*User{user})
}

type importUsersXML struct {
	XMLName xml.Name        `xml:"list"`
	Users   []importUserXML `xml:"user"`
}

type importUserXML struct {
	Login    string `xml:"login,attr,omitempty"`
	FullName string `xml:"fullName,attr,omitempty"`
	Email    string `xml:"email,attr,omitempty"`
	Jabber   string `xml:"jabber,attr,omitempty"`
}

// ImportUsers creates or updates users. Only login, full name, email and jabber are sent. The
// import report is returned as is, a report listing rejected users comes with status 400.
func (c *Connection) ImportUsers(ctx context.Context, users []*User) (*Payload, error) {
	if len(users) == 0 {
		return nil, nil
	}

	doc := importUsersXML{}
	for _, u := range users {
		doc.Users = append(doc.Users, importUserXML{
			Login:    u.Login,
			FullName: u.FullName,
			Email:    u.Email,
			Jabber:   u.Jabber,
		})
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("can not encode users: %w", err)
	}

	return c.do(ctx, http.MethodPut, "/import/users", body, http.StatusBadRequest)
}

func (c *Connection) GetUserGroups(ctx context.Context, login string) ([]*Group, error) {
	elements, err := c.getList(ctx, "/admin/user/"+quote(login)+"/group")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeGroup), nil
}

// SetUserGroup adds the user to a group.
func (c *Connection) SetUserGroup(ctx context.Context, login, group string) error {
	_, err := c.req(ctx, http.MethodPost, "/admin/user/"+quote(login)+"/group/"+quote(group), nil)
	return err
}

func (c *Connection) GetGroup(ctx context.Context, name string) (*Group, error) {
	el, err := c.get(ctx, "/admin/group/"+quote(name))
	if err != nil {
		return nil, err
	}

	return decodeGroup(el), nil
}

func (c *Connection) GetGroups(ctx context.Context) ([]*Group, error) {
	elements, err := c.getList(ctx, "/admin/group")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeGroup), nil
}

// CreateGroup creates a group. New users never join it automatically.
func (c *Connection) CreateGroup(ctx context.Context, group *Group) (*Payload, error) {
	return c.put(ctx, withQuery("/admin/group/"+quote(group.Name), url.Values{"autoJoin": {"false"}}))
}

func (c *Connection) DeleteGroup(ctx context.Context, name string) error {
	return c.delete(ctx, "/admin/group/"+quote(name))
}

// AddUserRoleToGroup grants a role to a group, limited to the projects listed in the role.
func (c *Connection) AddUserRoleToGroup(ctx context.Context, group string, role *UserRole) error {
	body, err := xml.Marshal(role)
	if err != nil {
		return fmt.Errorf("can not encode role %q: %w", role.Name, err)
	}

	_, err = c.req(ctx, http.MethodPut, "/admin/group/"+quote(group)+"/role/"+quote(role.Name), body)
	return err
}

func (c *Connection) GetGroupRoles(ctx context.Context, group string) ([]*UserRole, error) {
	elements, err := c.getList(ctx, "/admin/group/"+quote(group)+"/role")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeUserRole), nil
}

func (c *Connection) GetRole(ctx context.Context, name string) (*Role, error) {
	el, err := c.get(ctx, "/admin/role/"+quote(name))
	if err != nil {
		return nil, err
	}

	return decodeRole(el), nil
}

func (c *Connection) GetRoles(ctx context.Context) ([]*Role, error) {
	elements, err := c.getList(ctx, "/admin/role")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodeRole), nil
}

func (c *Connection) CreateRole(ctx context.Context, role *Role) (*Payload, error) {
	return c.put(ctx, withQuery("/admin/role/"+quote(role.Name), url.Values{"description": {role.Description}}))
}

// ChangeRole renames a role and replaces its description.
func (c *Connection) ChangeRole(ctx context.Context, name, newName, newDescription string) error {
	query := url.Values{
		"newName":     {newName},
		"description": {newDescription},
	}

	_, err := c.req(ctx, http.MethodPost, withQuery("/admin/role/"+quote(name), query), nil)
	return err
}

func (c *Connection) AddPermissionToRole(ctx context.Context, role, permission string) error {
	_, err := c.req(ctx, http.MethodPost, "/admin/role/"+quote(role)+"/permission/"+quote(permission), nil)
	return err
}

func (c *Connection) GetRolePermissions(ctx context.Context, role string) ([]*Permission, error) {
	elements, err := c.getList(ctx, "/admin/role/"+quote(role)+"/permission")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodePermission), nil
}

func (c *Connection) GetPermissions(ctx context.Context) ([]*Permission, error) {
	elements, err := c.getList(ctx, "/admin/permission")
	if err != nil {
		return nil, err
	}

	return decodeAll(elements, decodePermission), nil
}
