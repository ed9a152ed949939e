package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stretchr/testify/assert"

	"github.com/greenhouse-qa/greenhouse/internal/pages"
)

func (s *Suite) saleUISteps() StepCategory {
	return StepCategory{
		Name:        "Sales UI",
		Description: "Sales list, sell form and pagination",
		Surface:     SurfaceUI,
		Steps: []StepDef{
			{
				Group:       "Navigation",
				Pattern:     `^I navigate to "([^"]*)"$`,
				Description: "Open a path relative to the UI base URL",
				Example:     `I navigate to "ui/sales/new"`,
				Handler:     s.navigateTo,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I try to access the sales delete URL$`,
				Description: "Open the delete URL of sale 1 directly",
				Example:     `I try to access the sales delete URL`,
				Handler:     s.accessSaleDeleteURL,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I can navigate to the next page$`,
				Description: `Follow "Next" and check the URL changed`,
				Example:     `I can navigate to the next page`,
				Handler:     s.nextSalesPage,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I can navigate to the previous page$`,
				Description: `Follow "Previous"`,
				Example:     `I can navigate to the previous page`,
				Handler:     s.previousSalesPage,
			},
			{
				Group:       "Sell form",
				Pattern:     `^I select plant "([^"]*)" from dropdown$`,
				Description: "Pick the first option containing the plant name",
				Example:     `I select plant "S_ROSE" from dropdown`,
				Handler:     s.selectPlant,
			},
			{
				Group:       "Sell form",
				Pattern:     `^I enter quantity "([^"]*)"$`,
				Description: "Type into the quantity field",
				Example:     `I enter quantity "2"`,
				Handler:     s.enterQuantity,
			},
			{
				Group:       "Sell form",
				Pattern:     `^I click Sell$`,
				Description: "Submit the sell form",
				Example:     `I click Sell`,
				Handler:     s.clickSell,
			},
			{
				Group:       "Sales list",
				Pattern:     `^I delete the first sale from the list$`,
				Description: "Remember the row count, then delete the first row",
				Example:     `I delete the first sale from the list`,
				Handler:     s.deleteFirstSale,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the "([^"]*)" page should be visible$`,
				Description: `The "Sales" list or the "Sell Plant" form is shown`,
				Example:     `the "Sell Plant" page should be visible`,
				Handler:     s.salesPageVisible,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the sales table should be visible$`,
				Description: "The sales table is visible",
				Example:     `the sales table should be visible`,
				Handler:     s.salesTableVisible,
			},
			{
				Group:       "Assertions",
				Pattern:     `^pagination controls should be visible$`,
				Description: "The pager is shown",
				Example:     `pagination controls should be visible`,
				Handler:     s.paginationVisible,
			},
			{
				Group:       "Assertions",
				Pattern:     `^pagination controls should not be visible$`,
				Description: "The pager is hidden",
				Example:     `pagination controls should not be visible`,
				Handler:     s.paginationHidden,
			},
			{
				Group:       "Assertions",
				Pattern:     `^validation error should be displayed$`,
				Description: "A field error is shown on the sell form",
				Example:     `validation error should be displayed`,
				Handler:     s.saleValidationError,
			},
			{
				Group:       "Assertions",
				Pattern:     `^validation error alert box should be displayed$`,
				Description: "An error alert is shown on the sell form",
				Example:     `validation error alert box should be displayed`,
				Handler:     s.saleValidationAlert,
			},
			{
				Group:       "Assertions",
				Pattern:     `^I should be redirected to sales list page$`,
				Description: "The browser is on the sales list, not the sell form",
				Example:     `I should be redirected to sales list page`,
				Handler:     s.onSalesList,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the sale should be visible in the list$`,
				Description: "At least one sale row is listed",
				Example:     `the sale should be visible in the list`,
				Handler:     s.saleVisible,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the "([^"]*)" plant should not be in the dropdown$`,
				Description: "No sell-form option starts with the plant name",
				Example:     `the "S_LILY" plant should not be in the dropdown`,
				Handler:     s.plantNotInDropdown,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the sale count should decrease by one$`,
				Description: "One row fewer than before the delete",
				Example:     `the sale count should decrease by one`,
				Handler:     s.saleCountDecreased,
			},
			{
				Group:       "Assertions",
				Pattern:     `^I should not see delete option for sales$`,
				Description: "No delete buttons are rendered",
				Example:     `I should not see delete option for sales`,
				Handler:     s.noSaleDeleteOption,
			},
		},
	}
}

func (s *Suite) navigateTo(ctx context.Context, path string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	path = sc.expand(path)
	sc.LastNavigation = path
	return app.Navigate("/" + strings.TrimPrefix(path, "/"))
}

func (s *Suite) accessSaleDeleteURL(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.Navigate(s.env.Routes.Sales + "/delete/1"); err != nil {
		return err
	}
	return app.WaitIdle()
}

func (s *Suite) nextSalesPage(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	moved, err := app.Sales.NextPage()
	if err != nil {
		return err
	}
	if !moved {
		return errors.New("next page did not change the URL")
	}
	return nil
}

func (s *Suite) previousSalesPage(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	_, err = app.Sales.PreviousPage()
	return err
}

func (s *Suite) selectPlant(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Sales.SelectPlant(sc.expand(name))
}

func (s *Suite) enterQuantity(ctx context.Context, qty string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Sales.EnterQuantity(qty)
}

func (s *Suite) clickSell(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Sales.ClickSell()
}

func (s *Suite) deleteFirstSale(ctx context.Context) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	n, err := app.Sales.Count()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("no sales listed to delete")
	}
	sc.InitialSalesCount = n
	return app.Sales.DeleteRow(0)
}

func (s *Suite) salesPageVisible(ctx context.Context, name string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	switch name {
	case "Sales":
		return app.Sales.ExpectTitle()
	case "Sell Plant":
		return app.Sales.ExpectSellPageVisible()
	}
	return fmt.Errorf("unknown page %q (expected Sales or Sell Plant)", name)
}

func (s *Suite) salesTableVisible(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Sales.ExpectTableVisible()
}

func (s *Suite) paginationVisible(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	ok, err := app.Sales.ProbePagination()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("pagination controls are not visible")
	}
	return nil
}

func (s *Suite) paginationHidden(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Sales.ExpectPaginationHidden()
}

func (s *Suite) saleValidationError(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Sales.ExpectValidationError()
}

func (s *Suite) saleValidationAlert(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	ok, err := app.Sales.ProbeValidationAlert()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no validation alert on the sell form")
	}
	return nil
}

func (s *Suite) onSalesList(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.WaitIdle(); err != nil {
		return err
	}
	if !app.Sales.OnList() {
		return fmt.Errorf("expected the sales list, browser is on %s", app.URL())
	}
	return nil
}

func (s *Suite) saleVisible(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	n, err := app.Sales.Count()
	if err != nil {
		return err
	}
	return verify(func(t assert.TestingT) {
		assert.Positive(t, n, "listed sales")
	})
}

func (s *Suite) plantNotInDropdown(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	name = sc.expand(name)
	options, err := app.Sales.PlantOptions()
	if err != nil {
		return err
	}
	if pages.HasOptionPrefix(options, name) {
		return fmt.Errorf("plant %q is offered in the dropdown: %v", name, options)
	}
	return nil
}

func (s *Suite) saleCountDecreased(ctx context.Context) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	n, err := app.Sales.Count()
	if err != nil {
		return err
	}
	return verify(func(t assert.TestingT) {
		assert.Equal(t, sc.InitialSalesCount-1, n, "sales after deleting one of %d", sc.InitialSalesCount)
	})
}

func (s *Suite) noSaleDeleteOption(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	n, err := app.Sales.DeleteButtonCount()
	if err != nil {
		return err
	}
	return verify(func(t assert.TestingT) {
		assert.Zero(t, n, "sale delete buttons")
	})
}
