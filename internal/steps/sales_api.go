package steps

import (
	"context"
	"errors"
	"net/http"

	"github.com/stretchr/testify/assert"

	"github.com/greenhouse-qa/greenhouse/internal/nursery"
)

// defaultSalePlant is sold when "multiple sales exist" names no plant.
const defaultSalePlant = "S_ROSE"

func (s *Suite) saleAPISteps() StepCategory {
	return StepCategory{
		Name:        "Sales API",
		Description: "Sale fixtures, requests and paging assertions through the API",
		Surface:     SurfaceAPI,
		Steps: []StepDef{
			{
				Group:       "Givens",
				Pattern:     `^the plant "([^"]*)" exists via API$`,
				Description: "Look up an existing plant; fails listing the plants that do exist",
				Example:     `the plant "S_ROSE" exists via API`,
				Handler:     s.plantFoundViaAPI,
			},
			{
				Group:       "Givens",
				Pattern:     `^Out of stock plant "([^"]*)" exists via API$`,
				Description: "Look up an existing plant that has no stock left",
				Example:     `Out of stock plant "S_LILY" exists via API`,
				Handler:     s.plantFoundViaAPI,
			},
			{
				Group:       "Givens",
				Pattern:     `^a sale exists via API from "([^"]*)"$`,
				Description: "Reuse the first sale or sell 5 of the plant",
				Example:     `a sale exists via API from "S_ROSE"`,
				Handler:     s.saleExistsViaAPI,
			},
			{
				Group:       "Givens",
				Pattern:     `^multiple sales exist via API with count (\d+)$`,
				Description: "Sell S_ROSE until at least this many sales exist",
				Example:     `multiple sales exist via API with count 12`,
				Handler:     s.salesCountViaAPI,
			},
			{
				Group:       "Givens",
				Pattern:     `^multiple sales exist via API with count (\d+) from "([^"]*)"$`,
				Description: "Sell the plant until at least this many sales exist",
				Example:     `multiple sales exist via API with count 12 from "S_TULIP"`,
				Handler:     s.salesCountFromViaAPI,
			},
			{
				Group:       "Givens",
				Pattern:     `^all sales are deleted via API$`,
				Description: "Delete every sale",
				Example:     `all sales are deleted via API`,
				Handler:     s.deleteAllSalesViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I retrieve all sales via API$`,
				Description: "List every sale",
				Example:     `I retrieve all sales via API`,
				Handler:     s.retrieveSalesViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I sell plant "([^"]*)" with quantity (\d+) via API$`,
				Description: "Sell a plant looked up earlier",
				Example:     `I sell plant "S_ROSE" with quantity 2 via API`,
				Handler:     s.sellPlantViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I delete the sale via API$`,
				Description: "Delete the sale set up or created earlier",
				Example:     `I delete the sale via API`,
				Handler:     s.deleteSaleViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I delete a non-existent sale with ID (\d+) via API$`,
				Description: "Delete a sale by id",
				Example:     `I delete a non-existent sale with ID 999999 via API`,
				Handler:     s.deleteSaleByIDViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I retrieve sales with page (\d+) and size (\d+) via API$`,
				Description: "Fetch one page of sales",
				Example:     `I retrieve sales with page 0 and size 5 via API`,
				Handler:     s.salesPageViaAPI,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the sale response should contain valid sale details$`,
				Description: "201 with a sale whose totalPrice is price times quantity",
				Example:     `the sale response should contain valid sale details`,
				Handler:     s.validSaleDetails,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the paginated response should contain (\d+) sales$`,
				Description: "The page holds exactly this many sales",
				Example:     `the paginated response should contain 5 sales`,
				Handler:     s.pageContainsSales,
			},
			{
				Group:       "Assertions",
				Pattern:     `^pagination metadata should show total pages greater than (\d+)$`,
				Description: "totalPages is above the bound",
				Example:     `pagination metadata should show total pages greater than 1`,
				Handler:     s.totalPagesGreaterThan,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the paginated response should be consistent$`,
				Description: "content fits size and totalPages is ceil(totalElements / size)",
				Example:     `the paginated response should be consistent`,
				Handler:     s.pageConsistent,
			},
		},
	}
}

func (s *Suite) plantFoundViaAPI(ctx context.Context, name string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	name = sc.expand(name)
	plant, err := s.fixtures.FindPlant(ctx, name)
	if err != nil {
		return err
	}
	sc.Plants[name] = plant
	return nil
}

func (s *Suite) saleExistsViaAPI(ctx context.Context, plantName string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	sale, err := s.fixtures.EnsureSale(ctx, sc.expand(plantName))
	if err != nil {
		return err
	}
	sc.SaleID = sale.ID
	return nil
}

func (s *Suite) salesCountViaAPI(ctx context.Context, n int) error {
	return s.fixtures.EnsureSalesCount(ctx, n, defaultSalePlant)
}

func (s *Suite) salesCountFromViaAPI(ctx context.Context, n int, plantName string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	return s.fixtures.EnsureSalesCount(ctx, n, sc.expand(plantName))
}

func (s *Suite) deleteAllSalesViaAPI(ctx context.Context) error {
	return s.fixtures.DeleteAllSales(ctx)
}

func (s *Suite) retrieveSalesViaAPI(ctx context.Context) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	return sc.record(s.client.ListSales(ctx, token))
}

func (s *Suite) sellPlantViaAPI(ctx context.Context, name string, qty int) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	plant, err := sc.plant(sc.expand(name))
	if err != nil {
		return err
	}
	return sc.record(s.client.SellPlant(ctx, token, plant.ID, qty))
}

func (s *Suite) deleteSaleViaAPI(ctx context.Context) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	if sc.SaleID == 0 {
		return errors.New("no sale was set up or created in this scenario")
	}
	return s.deleteSaleByIDViaAPI(ctx, sc.SaleID)
}

func (s *Suite) deleteSaleByIDViaAPI(ctx context.Context, id int64) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	return sc.record(s.client.DeleteSale(ctx, token, id))
}

func (s *Suite) salesPageViaAPI(ctx context.Context, page, size int) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	return sc.record(s.client.SalesPage(ctx, token, page, size))
}

func (s *Suite) validSaleDetails(ctx context.Context) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	if err := resp.Expect(http.StatusCreated); err != nil {
		return err
	}
	var sale nursery.Sale
	if err := resp.JSON(&sale); err != nil {
		return err
	}
	if err := sale.Validate(); err != nil {
		return err
	}
	sc.SaleID = sale.ID
	return nil
}

func (sc *scenario) salesPage() (nursery.Page[nursery.Sale], error) {
	resp, err := sc.response()
	if err != nil {
		return nursery.Page[nursery.Sale]{}, err
	}
	if err := resp.Expect(http.StatusOK); err != nil {
		return nursery.Page[nursery.Sale]{}, err
	}
	return nursery.DecodePage[nursery.Sale](resp)
}

func (s *Suite) pageContainsSales(ctx context.Context, n int) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	page, err := sc.salesPage()
	if err != nil {
		return err
	}
	return verify(func(t assert.TestingT) {
		assert.Len(t, page.Content, n, "sales on page %d", page.Number)
	})
}

func (s *Suite) totalPagesGreaterThan(ctx context.Context, n int) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	page, err := sc.salesPage()
	if err != nil {
		return err
	}
	return verify(func(t assert.TestingT) {
		assert.Greater(t, page.TotalPages, n, "totalPages")
		assert.Positive(t, page.Size, "size")
	})
}

func (s *Suite) pageConsistent(ctx context.Context) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	page, err := sc.salesPage()
	if err != nil {
		return err
	}
	return page.Consistent()
}
