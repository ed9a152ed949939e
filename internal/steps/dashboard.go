package steps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"
)

func (s *Suite) dashboardUISteps() StepCategory {
	return StepCategory{
		Name:        "Dashboard UI",
		Description: "Dashboard cards, sidebar and navigation",
		Surface:     SurfaceUI,
		Steps: []StepDef{
			{
				Group:       "Navigation",
				Pattern:     `^I view the dashboard$`,
				Description: "The dashboard is shown",
				Example:     `I view the dashboard`,
				Handler:     s.viewDashboard,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I click "([^"]*)"$`,
				Description: "Follow a dashboard button such as Manage Plants",
				Example:     `I click "Manage Categories"`,
				Handler:     s.clickNav,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I click "([^"]*)" in the sidebar$`,
				Description: "Follow a sidebar link",
				Example:     `I click "Plants" in the sidebar`,
				Handler:     s.clickSidebar,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I open the inventory page$`,
				Description: "Follow the inventory link, which is rendered disabled",
				Example:     `I open the inventory page`,
				Handler:     s.openInventory,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I return to dashboard$`,
				Description: "Open the dashboard",
				Example:     `I return to dashboard`,
				Handler:     s.returnToDashboard,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I click the application title$`,
				Description: "Return to the dashboard through the header",
				Example:     `I click the application title`,
				Handler:     s.clickAppTitle,
			},
			{
				Group:       "Assertions",
				Pattern:     `^I should see the following cards:$`,
				Description: "Exactly these cards are shown (one name per cell)",
				Example:     `I should see the following cards:`,
				Handler:     s.expectCards,
			},
			{
				Group:       "Assertions",
				Pattern:     `^I should see the sidebar navigation$`,
				Description: "The sidebar is visible",
				Example:     `I should see the sidebar navigation`,
				Handler:     s.expectSidebar,
			},
			{
				Group:       "Assertions",
				Pattern:     `^I should be navigated to the "([^"]*)" page$`,
				Description: "The URL contains the page name",
				Example:     `I should be navigated to the "Plants" page`,
				Handler:     s.navigatedTo,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the dashboard should show low stock information$`,
				Description: "The Plants card mentions low stock",
				Example:     `the dashboard should show low stock information`,
				Handler:     s.lowStockShown,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the dashboard should show revenue$`,
				Description: "The Sales card shows revenue",
				Example:     `the dashboard should show revenue`,
				Handler:     s.revenueShown,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the dashboard sub category count should match the API$`,
				Description: "The Categories card agrees with the category summary endpoint",
				Example:     `the dashboard sub category count should match the API`,
				Handler:     s.subCategoryCountMatches,
			},
		},
	}
}

func (s *Suite) viewDashboard(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	ok, err := app.Dashboard.IsVisible()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("dashboard is not visible (browser is on %s)", app.URL())
	}
	return nil
}

func (s *Suite) clickNav(ctx context.Context, name string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Dashboard.ClickNav(name)
}

func (s *Suite) clickSidebar(ctx context.Context, text string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Dashboard.ClickSidebarLink(text)
}

func (s *Suite) openInventory(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Dashboard.OpenInventory()
}

func (s *Suite) returnToDashboard(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Dashboard.Open()
}

func (s *Suite) clickAppTitle(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Dashboard.ClickAppTitle()
}

func (s *Suite) expectCards(ctx context.Context, table *godog.Table) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Dashboard.ExpectCards(tableCells(table)...)
}

func (s *Suite) expectSidebar(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Dashboard.ExpectSidebar()
}

func (s *Suite) navigatedTo(ctx context.Context, name string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.WaitIdle(); err != nil {
		return err
	}
	want := "/" + strings.ToLower(name)
	if !strings.Contains(app.URL(), want) {
		return fmt.Errorf("expected a URL containing %q, browser is on %s", want, app.URL())
	}
	return nil
}

func (s *Suite) lowStockShown(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	ok, err := app.Dashboard.ProbeLowStock()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no low stock information on the Plants card")
	}
	return nil
}

func (s *Suite) revenueShown(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	revenue, err := app.Dashboard.Revenue()
	if err != nil {
		return err
	}
	if revenue == "" {
		return errors.New("the Sales card shows no revenue")
	}
	return nil
}

func (s *Suite) subCategoryCountMatches(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	shown, err := app.Dashboard.SubCategoryCount()
	if err != nil {
		return err
	}
	token, err := s.fixtures.AdminToken(ctx)
	if err != nil {
		return err
	}
	resp, err := s.client.CategorySummary(ctx, token)
	if err != nil {
		return err
	}
	if err := resp.Expect(http.StatusOK); err != nil {
		return err
	}
	var summary struct {
		SubCategories int `json:"subCategories"`
	}
	if err := resp.JSON(&summary); err != nil {
		return err
	}
	return verify(func(t assert.TestingT) {
		assert.Equal(t, summary.SubCategories, shown, "sub-categories on the dashboard")
	})
}
