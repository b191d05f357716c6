package youtrack

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

func bundlePath(fieldType FieldType, name string) (string, error) {
	kind, err := kindOf(fieldType)
	if err != nil {
		return "", err
	}

	path := "/admin/customfield/" + kind.path
	if name != "" {
		path += "/" + quote(name)
	}

	return path, nil
}

// GetAllBundles fetches every bundle for the field type. The type may carry a cardinality suffix.
func (c *Connection) GetAllBundles(ctx context.Context, fieldType string) ([]*Bundle, error) {
	ft := NormalizeFieldType(fieldType)
	kind, err := kindOf(ft)
	if err != nil {
		return nil, err
	}

	path, _ := bundlePath(ft, "")
	el, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var bundles []*Bundle
	for _, b := range el.FindAll(kind.listTag) {
		bundle, err := c.GetBundle(ctx, string(ft), b.Attr("name"))
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, bundle)
	}

	return bundles, nil
}

func (c *Connection) GetBundle(ctx context.Context, fieldType, name string) (*Bundle, error) {
	ft := NormalizeFieldType(fieldType)
	path, err := bundlePath(ft, name)
	if err != nil {
		return nil, err
	}

	el, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	return decodeBundle(ft, el)
}

// CreateBundle creates a bundle with its elements. A bundle that already exists is reported
// with status 400, which is accepted.
func (c *Connection) CreateBundle(ctx context.Context, bundle *Bundle) (*Payload, error) {
	path, err := bundlePath(bundle.Type, "")
	if err != nil {
		return nil, err
	}

	body, err := xml.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("can not encode bundle %q: %w", bundle.Name, err)
	}

	return c.do(ctx, http.MethodPut, path, body, http.StatusBadRequest)
}

func (c *Connection) RenameBundle(ctx context.Context, bundle *Bundle, newName string) error {
	path, err := bundlePath(bundle.Type, bundle.Name)
	if err != nil {
		return err
	}

	_, err = c.req(ctx, http.MethodPost, withQuery(path, url.Values{"newName": {newName}}), nil, http.StatusMovedPermanently)
	return err
}

func (c *Connection) DeleteBundle(ctx context.Context, bundle *Bundle) error {
	path, err := bundlePath(bundle.Type, bundle.Name)
	if err != nil {
		return err
	}

	return c.delete(ctx, path)
}

// AddValueToBundle adds an element to a bundle. The element's attributes are sent as well.
func (c *Connection) AddValueToBundle(ctx context.Context, bundle *Bundle, value *BundleElement) (*Payload, error) {
	if bundle.Type == UserFieldType {
		return nil, fmt.Errorf("user bundle %q holds users and groups", bundle.Name)
	}

	path, err := bundlePath(bundle.Type, bundle.Name)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	attrs := value.attrs(bundle.Type)
	for _, name := range attrs.Names() {
		query.Set(name, attrs.Get(name))
	}

	return c.put(ctx, withQuery(path+"/"+quote(value.Name), query))
}

// RemoveValueFromBundle removes an element from a bundle. Status 204 is accepted.
func (c *Connection) RemoveValueFromBundle(ctx context.Context, bundle *Bundle, name string) error {
	path, err := bundlePath(bundle.Type, bundle.Name)
	if err != nil {
		return err
	}

	return c.delete(ctx, path+"/"+quote(name), http.StatusNoContent)
}

func (c *Connection) GetEnumBundle(ctx context.Context, name string) (*Bundle, error) {
	return c.GetBundle(ctx, string(EnumFieldType), name)
}

// CreateEnumBundleDetailed creates an enumeration bundle from plain values.
func (c *Connection) CreateEnumBundleDetailed(ctx context.Context, name string, values []string) (*Payload, error) {
	bundle := &Bundle{Type: EnumFieldType, Name: name}
	for _, v := range values {
		bundle.Elements = append(bundle.Elements, bundle.NewElement(v))
	}

	return c.CreateBundle(ctx, bundle)
}

// AddValuesToEnumBundle adds plain values to an enumeration bundle, one request per value.
func (c *Connection) AddValuesToEnumBundle(ctx context.Context, name string, values []string) error {
	bundle, err := c.GetEnumBundle(ctx, name)
	if err != nil {
		return err
	}

	for _, v := range values {
		if _, err := c.AddValueToBundle(ctx, bundle, bundle.NewElement(v)); err != nil {
			return fmt.Errorf("can not add %q to %q: %w", v, name, err)
		}
	}

	return nil
}

func (c *Connection) GetUserBundle(ctx context.Context, name string) (*Bundle, error) {
	return c.GetBundle(ctx, string(UserFieldType), name)
}

// AddUserToBundle adds a single user to a user bundle.
func (c *Connection) AddUserToBundle(ctx context.Context, bundle, login string) (*Payload, error) {
	return c.put(ctx, userBundleMemberPath(bundle, "individual", login))
}

// AddGroupToBundle adds all members of a group to a user bundle.
func (c *Connection) AddGroupToBundle(ctx context.Context, bundle, group string) (*Payload, error) {
	return c.put(ctx, userBundleMemberPath(bundle, "group", group))
}

func (c *Connection) RemoveUserFromBundle(ctx context.Context, bundle, login string) error {
	return c.delete(ctx, strings.TrimSuffix(userBundleMemberPath(bundle, "individual", login), "/"), http.StatusNoContent)
}

func (c *Connection) RemoveGroupFromBundle(ctx context.Context, bundle, group string) error {
	return c.delete(ctx, strings.TrimSuffix(userBundleMemberPath(bundle, "group", group), "/"), http.StatusNoContent)
}

func userBundleMemberPath(bundle, kind, name string) string {
	path, _ := bundlePath(UserFieldType, bundle)
	return path + "/" + kind + "/" + quote(name) + "/"
}
