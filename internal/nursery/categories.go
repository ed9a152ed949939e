package nursery

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) ListCategories(ctx context.Context, token string) (*Response, error) {
	return c.Get(ctx, c.env.Endpoints.Categories, token)
}

func (c *Client) SubCategories(ctx context.Context, token string) (*Response, error) {
	return c.Get(ctx, joinPath(c.env.Endpoints.Categories, "sub-categories"), token)
}

func (c *Client) SearchCategories(ctx context.Context, token, search string, page, size int) (*Response, error) {
	return c.Get(ctx, joinPath(c.env.Endpoints.Categories, "page")+"?"+pageQuery(search, page, size), token)
}

func (c *Client) CategorySummary(ctx context.Context, token string) (*Response, error) {
	return c.Get(ctx, joinPath(c.env.Endpoints.Categories, "summary"), token)
}

// CreateCategory creates a main category, or a sub-category when parentID is non-zero.
func (c *Client) CreateCategory(ctx context.Context, token, name string, parentID int64) (*Response, error) {
	body := map[string]any{"name": name}
	if parentID != 0 {
		body["parentId"] = parentID
	}
	return c.Do(ctx, http.MethodPost, c.env.Endpoints.Categories, token, body)
}

// UpdateCategory renames a category. An empty name sends an empty object so
// the server's own validation is exercised.
func (c *Client) UpdateCategory(ctx context.Context, token string, id int64, name string) (*Response, error) {
	body := map[string]any{}
	if name != "" {
		body["name"] = name
	}
	return c.Do(ctx, http.MethodPut, joinPath(c.env.Endpoints.Categories, strconv.FormatInt(id, 10)), token, body)
}

func (c *Client) DeleteCategory(ctx context.Context, token string, id int64) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, joinPath(c.env.Endpoints.Categories, strconv.FormatInt(id, 10)), token, nil)
}

// Categories lists and decodes every category.
func (c *Client) Categories(ctx context.Context, token string) ([]Category, error) {
	resp, err := c.ListCategories(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := resp.Expect(http.StatusOK); err != nil {
		return nil, err
	}
	return DecodeList[Category](resp)
}

// FindCategory returns the category named name, matched case-insensitively.
func (c *Client) FindCategory(ctx context.Context, token, name string) (Category, bool, error) {
	list, err := c.Categories(ctx, token)
	if err != nil {
		return Category{}, false, err
	}
	cat, ok := FindByName(list, name, categoryName)
	return cat, ok, nil
}

func pageQuery(search string, page, size int) string {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	return q.Encode()
}
