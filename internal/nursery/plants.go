package nursery

import (
	"context"
	"net/http"
	"strconv"
)

func (c *Client) ListPlants(ctx context.Context, token string) (*Response, error) {
	return c.Get(ctx, c.env.Endpoints.Plants, token)
}

// SearchPlants queries the paged endpoint and falls back to the full list
// when the paged endpoint is unavailable (any status >= 400).
func (c *Client) SearchPlants(ctx context.Context, token, search string, page, size int) (*Response, error) {
	resp, err := c.Get(ctx, joinPath(c.env.Endpoints.Plants, "paged")+"?"+pageQuery(search, page, size), token)
	if err != nil {
		return nil, err
	}
	if resp.Status >= 400 {
		return c.ListPlants(ctx, token)
	}
	return resp, nil
}

func (c *Client) PlantSummary(ctx context.Context, token string) (*Response, error) {
	return c.Get(ctx, joinPath(c.env.Endpoints.Plants, "summary"), token)
}

// CreatePlant adds a plant to the sub-category categoryID.
func (c *Client) CreatePlant(ctx context.Context, token string, categoryID int64, in PlantInput) (*Response, error) {
	in.CategoryID = 0
	return c.CreatePlantBody(ctx, token, categoryID, in)
}

// CreatePlantBody posts body unchanged, so malformed input reaches the
// server's validation.
func (c *Client) CreatePlantBody(ctx context.Context, token string, categoryID int64, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, joinPath(c.env.Endpoints.Plants, "category", strconv.FormatInt(categoryID, 10)), token, body)
}

func (c *Client) UpdatePlant(ctx context.Context, token string, id int64, in PlantInput) (*Response, error) {
	return c.UpdatePlantBody(ctx, token, id, in)
}

func (c *Client) UpdatePlantBody(ctx context.Context, token string, id int64, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, joinPath(c.env.Endpoints.Plants, strconv.FormatInt(id, 10)), token, body)
}

func (c *Client) DeletePlant(ctx context.Context, token string, id int64) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, joinPath(c.env.Endpoints.Plants, strconv.FormatInt(id, 10)), token, nil)
}

// Plants lists and decodes every plant.
func (c *Client) Plants(ctx context.Context, token string) ([]Plant, error) {
	resp, err := c.ListPlants(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := resp.Expect(http.StatusOK); err != nil {
		return nil, err
	}
	return DecodeList[Plant](resp)
}

// SubCategoryList lists and decodes the sub-categories plants can belong to.
func (c *Client) SubCategoryList(ctx context.Context, token string) ([]Category, error) {
	resp, err := c.SubCategories(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := resp.Expect(http.StatusOK); err != nil {
		return nil, err
	}
	return DecodeList[Category](resp)
}

// FindPlant returns the plant named name, matched case-insensitively.
func (c *Client) FindPlant(ctx context.Context, token, name string) (Plant, bool, []Plant, error) {
	list, err := c.Plants(ctx, token)
	if err != nil {
		return Plant{}, false, nil, err
	}
	p, ok := FindByName(list, name, plantName)
	return p, ok, list, nil
}
