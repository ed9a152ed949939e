package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

func (s *Suite) categoryUISteps() StepCategory {
	return StepCategory{
		Name:        "Categories UI",
		Description: "Category management screens",
		Surface:     SurfaceUI,
		Steps: []StepDef{
			{
				Group:       "Givens",
				Pattern:     `^a category exists named "([^"]*)"$`,
				Description: "Add the category through the UI unless it is listed",
				Example:     `a category exists named "Herbs"`,
				Handler:     s.categoryExistsUI,
			},
			{
				Group:       "Givens",
				Pattern:     `^no category exists named "([^"]*)"$`,
				Description: "Delete the category through the API if it exists",
				Example:     `no category exists named "Herbs"`,
				Handler:     s.noCategoryViaAPI,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I go to the "([^"]*)" (?:management )?page$`,
				Description: "Open Categories, Plants, Sales or Dashboard",
				Example:     `I go to the "Categories" management page`,
				Handler:     s.goToPage,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I click the "([^"]*)" button$`,
				Description: "Click the first link or button with this text",
				Example:     `I click the "Add A Category" button`,
				Handler:     s.clickButton,
			},
			{
				Group:       "Navigation",
				Pattern:     `^I try to access the "([^"]*)" page directly$`,
				Description: "Open the add or edit category form by URL",
				Example:     `I try to access the "Add Category" page directly`,
				Handler:     s.accessCategoryPageDirectly,
			},
			{
				Group:       "Actions",
				Pattern:     `^I enter category name "([^"]*)"$`,
				Description: "Type into the category name field",
				Example:     `I enter category name "Herbs"`,
				Handler:     s.enterCategoryName,
			},
			{
				Group:       "Actions",
				Pattern:     `^I add a new category with "([^"]*)"$`,
				Description: "Submit the add form with this name",
				Example:     `I add a new category with "Herbs"`,
				Handler:     s.addCategoryUI,
			},
			{
				Group:       "Actions",
				Pattern:     `^I click the edit button for category "([^"]*)"$`,
				Description: "Open the edit form of a listed category",
				Example:     `I click the edit button for category "Herbs"`,
				Handler:     s.clickEditCategory,
			},
			{
				Group:       "Actions",
				Pattern:     `^I edit category "([^"]*)" to "([^"]*)"$`,
				Description: "Save the open edit form with a new name",
				Example:     `I edit category "Herbs" to "Spices"`,
				Handler:     s.editCategoryUI,
			},
			{
				Group:       "Actions",
				Pattern:     `^I delete category "([^"]*)"$`,
				Description: "Delete a listed category, confirming the dialog",
				Example:     `I delete category "Herbs"`,
				Handler:     s.deleteCategoryUI,
			},
			{
				Group:       "Actions",
				Pattern:     `^I search categories for "([^"]*)"$`,
				Description: "Search the category list",
				Example:     `I search categories for "Her"`,
				Handler:     s.searchCategoriesUI,
			},
			{
				Group:       "Visibility",
				Pattern:     `^the "(Add|Edit)" Category page should be visible$`,
				Description: "The add or edit form is open",
				Example:     `the "Add" Category page should be visible`,
				Handler:     s.categoryFormVisible,
			},
			{
				Group:       "Visibility",
				Pattern:     `^I should be redirected to category list page$`,
				Description: "The category list is open",
				Example:     `I should be redirected to category list page`,
				Handler:     s.onCategoryList,
			},
			{
				Group:       "Visibility",
				Pattern:     `^I should see the category "([^"]*)" in the category list$`,
				Description: "A row with this name is visible",
				Example:     `I should see the category "Herbs" in the category list`,
				Handler:     s.categoryVisible,
			},
			{
				Group:       "Visibility",
				Pattern:     `^the category "([^"]*)" should be visible in the category list$`,
				Description: "A row with this name is visible",
				Example:     `the category "Herbs" should be visible in the category list`,
				Handler:     s.categoryVisible,
			},
			{
				Group:       "Visibility",
				Pattern:     `^I should not see the category "([^"]*)" in the category list$`,
				Description: "No row with this name is visible",
				Example:     `I should not see the category "Herbs" in the category list`,
				Handler:     s.categoryNotVisible,
			},
			{
				Group:       "Visibility",
				Pattern:     `^I should see a category validation error$`,
				Description: "An error banner shows or the form did not submit",
				Example:     `I should see a category validation error`,
				Handler:     s.categoryValidationError,
			},
			{
				Group:       "Visibility",
				Pattern:     `^only categories matching "([^"]*)" should be shown$`,
				Description: "Every listed row contains the term",
				Example:     `only categories matching "Her" should be shown`,
				Handler:     s.onlyCategoriesMatching,
			},
			{
				Group:       "Role restrictions",
				Pattern:     `^the categories list should be visible$`,
				Description: "The category table is visible",
				Example:     `the categories list should be visible`,
				Handler:     s.categoryListVisible,
			},
			{
				Group:       "Role restrictions",
				Pattern:     `^the "([^"]*)" button should not be visible$`,
				Description: "No visible link with this text",
				Example:     `the "Add A Category" button should not be visible`,
				Handler:     s.buttonNotVisible,
			},
			{
				Group:       "Role restrictions",
				Pattern:     `^the (edit|delete) button should not be visible for any category$`,
				Description: "Every edit or delete control is disabled",
				Example:     `the delete button should not be visible for any category`,
				Handler:     s.rowActionsDisabled,
			},
			{
				Group:       "Role restrictions",
				Pattern:     `^I should be redirected to error page "([^"]*)"$`,
				Description: "The browser is on exactly this URL (a path is joined to the UI base URL)",
				Example:     `I should be redirected to error page "/ui/403"`,
				Handler:     s.redirectedToErrorPage,
			},
		},
	}
}

func (s *Suite) categoryExistsUI(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	name = sc.expand(name)
	if err := app.Categories.Open(); err != nil {
		return err
	}
	ok, err := app.Categories.HasRow(name)
	if err != nil || ok {
		return err
	}
	return app.Categories.Add(name)
}

func (s *Suite) goToPage(ctx context.Context, name string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	switch strings.ToLower(name) {
	case "categories":
		return app.Categories.Open()
	case "plants":
		return app.Plants.Open()
	case "sales":
		return app.Sales.Open()
	case "dashboard":
		return app.Dashboard.Open()
	}
	return fmt.Errorf("unknown page %q (expected Categories, Plants, Sales or Dashboard)", name)
}

func (s *Suite) clickButton(ctx context.Context, text string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.ClickButton(text)
}

func (s *Suite) accessCategoryPageDirectly(ctx context.Context, kind string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	switch {
	case strings.Contains(kind, "Add"):
		return app.CategoryForm.OpenAdd()
	case strings.Contains(kind, "Edit"):
		return app.CategoryForm.OpenEdit(1)
	}
	return fmt.Errorf("unknown category page %q (expected Add or Edit)", kind)
}

func (s *Suite) enterCategoryName(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.CategoryForm.FillName(sc.expand(name))
}

func (s *Suite) addCategoryUI(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.Categories.Open(); err != nil {
		return err
	}
	if err := app.Categories.ClickAdd(); err != nil {
		return err
	}
	if err := app.CategoryForm.FillName(sc.expand(name)); err != nil {
		return err
	}
	return app.CategoryForm.Save()
}

func (s *Suite) clickEditCategory(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Categories.ClickEdit(sc.expand(name))
}

// editCategoryUI saves the edit form that is already open.
func (s *Suite) editCategoryUI(ctx context.Context, _, newName string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.CategoryForm.FillName(sc.expand(newName)); err != nil {
		return err
	}
	if err := app.CategoryForm.Save(); err != nil {
		return err
	}
	return app.Categories.ExpectOnList()
}

func (s *Suite) deleteCategoryUI(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Categories.Delete(sc.expand(name))
}

func (s *Suite) searchCategoriesUI(ctx context.Context, term string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	sc.SearchTerm = sc.expand(term)
	if err := app.Categories.Open(); err != nil {
		return err
	}
	return app.Categories.Search(sc.SearchTerm)
}

func (s *Suite) categoryFormVisible(ctx context.Context, kind string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.CategoryForm.ExpectTitle(kind)
}

func (s *Suite) onCategoryList(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Categories.ExpectOnList()
}

func (s *Suite) categoryVisible(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Categories.ExpectCategoryVisible(sc.expand(name))
}

func (s *Suite) categoryNotVisible(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Categories.ExpectCategoryNotVisible(sc.expand(name))
}

func (s *Suite) categoryValidationError(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	ok, err := app.Categories.ProbeValidationError()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("expected a category validation error, but the form was accepted")
	}
	return nil
}

func (s *Suite) onlyCategoriesMatching(ctx context.Context, term string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Categories.ExpectOnlyMatching(sc.expand(term))
}

func (s *Suite) categoryListVisible(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Categories.ExpectListVisible()
}

func (s *Suite) buttonNotVisible(ctx context.Context, text string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.ExpectHidden(app.Locator(fmt.Sprintf(`a:has-text(%q)`, text)), fmt.Sprintf("%q button", text))
}

func (s *Suite) rowActionsDisabled(ctx context.Context, kind string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Categories.ExpectRowActionsDisabled(kind)
}

func (s *Suite) redirectedToErrorPage(ctx context.Context, url string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if strings.HasPrefix(url, "/") {
		url = s.env.UIURL(url)
	}
	return app.ExpectURLEquals(url)
}
