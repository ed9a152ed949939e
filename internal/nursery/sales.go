package nursery

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

func (c *Client) ListSales(ctx context.Context, token string) (*Response, error) {
	return c.Get(ctx, c.env.Endpoints.Sales, token)
}

func (c *Client) SalesPage(ctx context.Context, token string, page, size int) (*Response, error) {
	return c.Get(ctx, joinPath(c.env.Endpoints.Sales, "page")+"?"+pageQuery("", page, size), token)
}

// SellPlant records a sale of quantity units of plantID.
func (c *Client) SellPlant(ctx context.Context, token string, plantID int64, quantity int) (*Response, error) {
	path := fmt.Sprintf("%s?quantity=%d", joinPath(c.env.Endpoints.Sales, "plant", strconv.FormatInt(plantID, 10)), quantity)
	return c.Do(ctx, http.MethodPost, path, token, nil)
}

func (c *Client) DeleteSale(ctx context.Context, token string, id int64) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, joinPath(c.env.Endpoints.Sales, strconv.FormatInt(id, 10)), token, nil)
}

// Sales lists and decodes every sale.
func (c *Client) Sales(ctx context.Context, token string) ([]Sale, error) {
	resp, err := c.ListSales(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := resp.Expect(http.StatusOK); err != nil {
		return nil, err
	}
	return DecodeList[Sale](resp)
}
