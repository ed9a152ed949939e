package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/greenhouse-qa/greenhouse/internal/fixtures"
	"github.com/greenhouse-qa/greenhouse/internal/pages"
)

func (s *Suite) plantUISteps() StepCategory {
	return StepCategory{
		Name:        "Plants UI",
		Description: "Plant management screens for admins and the read-only list for users",
		Surface:     SurfaceUI,
		Steps: []StepDef{
			{
				Group:       "Givens",
				Pattern:     `^a plant exists named "([^"]*)"$`,
				Description: "Add the plant through the UI (Orchid, 1000, 10) unless it is listed",
				Example:     `a plant exists named "Tulip"`,
				Handler:     s.plantExistsUI,
			},
			{
				Group:       "Givens",
				Pattern:     `^a plant exists named "([^"]*)" in category "([^"]*)"$`,
				Description: "Add the plant to the category through the UI unless such a row is listed",
				Example:     `a plant exists named "Tulip" in category "Bulbs"`,
				Handler:     s.plantExistsInCategoryUI,
			},
			{
				Group:       "Givens",
				Pattern:     `^a plant exists named "([^"]*)" for user scenarios$`,
				Description: "Create the plant through the API so a user session can see it",
				Example:     `a plant exists named "Fern" for user scenarios`,
				Handler:     s.plantExistsForUser,
			},
			{
				Group:       "Actions",
				Pattern:     `^I add a new plant with:$`,
				Description: "Submit the add form from a table with name, category, price and quantity columns",
				Example:     `I add a new plant with:`,
				Handler:     s.addPlantUI,
			},
			{
				Group:       "Actions",
				Pattern:     `^I edit plant "([^"]*)" to:$`,
				Description: "Edit a listed plant from a table and wait for the new name",
				Example:     `I edit plant "Tulip" to:`,
				Handler:     s.editPlantUI,
			},
			{
				Group:       "Actions",
				Pattern:     `^I delete plant "([^"]*)"$`,
				Description: "Delete a listed plant, confirming the dialog",
				Example:     `I delete plant "Tulip"`,
				Handler:     s.deletePlantUI,
			},
			{
				Group:       "Actions",
				Pattern:     `^I search plants for "([^"]*)"$`,
				Description: "Search the plant list",
				Example:     `I search plants for "Tul"`,
				Handler:     s.searchPlantsUI,
			},
			{
				Group:       "Visibility",
				Pattern:     `^I should see the plant "([^"]*)" in the plant list$`,
				Description: "Reload the list and find a row with this name",
				Example:     `I should see the plant "Tulip" in the plant list`,
				Handler:     s.plantVisible,
			},
			{
				Group:       "Visibility",
				Pattern:     `^I should not see the plant "([^"]*)" in the plant list$`,
				Description: "Reload the list and find no row with this name",
				Example:     `I should not see the plant "Tulip" in the plant list`,
				Handler:     s.plantNotVisible,
			},
			{
				Group:       "Visibility",
				Pattern:     `^there should be only (\d+) plants? named "([^"]*)" in category "([^"]*)"$`,
				Description: "Count the rows with this name and category",
				Example:     `there should be only 1 plant named "Tulip" in category "Bulbs"`,
				Handler:     s.plantRowCount,
			},
			{
				Group:       "Visibility",
				Pattern:     `^I should see a plant validation error$`,
				Description: "A field error is shown on the plant form",
				Example:     `I should see a plant validation error`,
				Handler:     s.plantValidationError,
			},
			{
				Group:       "Visibility",
				Pattern:     `^only plants matching "([^"]*)" should be shown$`,
				Description: "Every listed row contains the term",
				Example:     `only plants matching "Tul" should be shown`,
				Handler:     s.onlyPlantsMatching,
			},
			{
				Group:       "User view",
				Pattern:     `^I should see the plant list$`,
				Description: "The plant table and heading are visible",
				Example:     `I should see the plant list`,
				Handler:     s.plantListVisible,
			},
			{
				Group:       "User view",
				Pattern:     `^the "([^"]*)" option should be hidden or disabled$`,
				Description: `"Add a Plant", "Edit" or "Delete" is hidden or disabled`,
				Example:     `the "Add a Plant" option should be hidden or disabled`,
				Handler:     s.plantOptionHidden,
			},
		},
	}
}

func (sc *scenario) plantForm(table *godog.Table) (pages.PlantForm, error) {
	rec, err := tableRecord(table)
	if err != nil {
		return pages.PlantForm{}, err
	}
	return pages.PlantForm{
		Name:     sc.expand(rec["name"]),
		Category: sc.expand(rec["category"]),
		Price:    sc.expand(rec["price"]),
		Quantity: sc.expand(rec["quantity"]),
	}, nil
}

func (s *Suite) plantExistsUI(ctx context.Context, name string) error {
	return s.ensurePlantUI(ctx, pages.PlantForm{Name: name, Category: defaultPlantCategory, Price: "1000", Quantity: "10"}, false)
}

func (s *Suite) plantExistsInCategoryUI(ctx context.Context, name, category string) error {
	return s.ensurePlantUI(ctx, pages.PlantForm{Name: name, Category: category, Price: "900", Quantity: "15"}, true)
}

func (s *Suite) ensurePlantUI(ctx context.Context, form pages.PlantForm, matchCategory bool) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	form.Name = sc.expand(form.Name)
	form.Category = sc.expand(form.Category)
	if err := app.Plants.Open(); err != nil {
		return err
	}
	var also []string
	if matchCategory {
		also = append(also, form.Category)
	}
	ok, err := app.Plants.HasPlant(form.Name, also...)
	if err != nil || ok {
		return err
	}
	return app.Plants.Add(form)
}

func (s *Suite) plantExistsForUser(ctx context.Context, name string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	name = sc.expand(name)
	plant, err := s.fixtures.EnsurePlant(ctx, fixtures.PlantSpec{
		Name:     name,
		Category: defaultPlantCategory,
		Price:    1000,
		Quantity: 10,
	})
	if err != nil {
		return err
	}
	sc.Plants[name] = plant
	return nil
}

func (s *Suite) addPlantUI(ctx context.Context, table *godog.Table) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	form, err := sc.plantForm(table)
	if err != nil {
		return err
	}
	if err := app.Plants.Open(); err != nil {
		return err
	}
	return app.Plants.Add(form)
}

func (s *Suite) editPlantUI(ctx context.Context, name string, table *godog.Table) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	form, err := sc.plantForm(table)
	if err != nil {
		return err
	}
	if err := app.Plants.Open(); err != nil {
		return err
	}
	if err := app.Plants.Edit(sc.expand(name), form); err != nil {
		return err
	}
	if err := app.Plants.Open(); err != nil {
		return err
	}
	return app.Plants.ExpectPlantVisible(form.Name)
}

func (s *Suite) deletePlantUI(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.Plants.Open(); err != nil {
		return err
	}
	return app.Plants.Delete(sc.expand(name))
}

func (s *Suite) searchPlantsUI(ctx context.Context, term string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	sc.SearchTerm = sc.expand(term)
	return app.Plants.Search(sc.SearchTerm)
}

func (s *Suite) plantVisible(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.Plants.Open(); err != nil {
		return err
	}
	return app.Plants.ExpectPlantVisible(sc.expand(name))
}

func (s *Suite) plantNotVisible(ctx context.Context, name string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.Plants.Open(); err != nil {
		return err
	}
	return app.Plants.ExpectPlantNotVisible(sc.expand(name))
}

func (s *Suite) plantRowCount(ctx context.Context, n int, name, category string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.Plants.Open(); err != nil {
		return err
	}
	return app.Plants.ExpectRowCount(sc.expand(name), sc.expand(category), n)
}

func (s *Suite) plantValidationError(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Plants.ExpectValidationError()
}

func (s *Suite) onlyPlantsMatching(ctx context.Context, term string) error {
	sc, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	return app.Plants.ExpectOnlyMatching(sc.expand(term))
}

func (s *Suite) plantListVisible(ctx context.Context) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.Plants.ExpectListVisible(); err != nil {
		return err
	}
	return app.Plants.ExpectTitle()
}

func (s *Suite) plantOptionHidden(ctx context.Context, option string) error {
	_, app, err := currentUI(ctx)
	if err != nil {
		return err
	}
	if err := app.Plants.ExpectOptionHiddenOrDisabled(option); err != nil {
		return fmt.Errorf("plant list: %w", err)
	}
	return nil
}
