package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/greenhouse-qa/greenhouse/internal/fixtures"
	"github.com/greenhouse-qa/greenhouse/internal/nursery"
)

// Defaults for plants created as preconditions.
const (
	defaultPlantCategory = "Orchid"
	defaultPlantPrice    = 10
	defaultPlantQuantity = 100
)

func (s *Suite) plantAPISteps() StepCategory {
	return StepCategory{
		Name:        "Plants API",
		Description: "Plant fixtures and requests through the API",
		Surface:     SurfaceAPI,
		Steps: []StepDef{
			{
				Group:       "Givens",
				Pattern:     `^a plant exists via API named "([^"]*)"$`,
				Description: "Create the plant in the Orchid sub-category (or the first one) unless it exists",
				Example:     `a plant exists via API named "Rose"`,
				Handler:     s.plantExistsViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I create a plant via API with:$`,
				Description: "Create a plant from a table with name, category, price and quantity columns",
				Example:     `I create a plant via API with:`,
				Handler:     s.createPlantViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I update plant "([^"]*)" via API with:$`,
				Description: "Update an existing plant from a table",
				Example:     `I update plant "Rose" via API with:`,
				Handler:     s.updatePlantViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I delete plant "([^"]*)" via API$`,
				Description: "Delete an existing plant",
				Example:     `I delete plant "Rose" via API`,
				Handler:     s.deletePlantViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I get all plants via API$`,
				Description: "List every plant",
				Example:     `I get all plants via API`,
				Handler:     s.getAllPlantsViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I search plants via API for "([^"]*)"$`,
				Description: "Search the paged endpoint, falling back to the full list",
				Example:     `I search plants via API for "Ros"`,
				Handler:     s.searchPlantsViaAPI,
			},
		},
	}
}

func (s *Suite) plantExistsViaAPI(ctx context.Context, name string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	name = sc.expand(name)
	plant, err := s.fixtures.EnsurePlant(ctx, fixtures.PlantSpec{
		Name:     name,
		Category: defaultPlantCategory,
		Price:    defaultPlantPrice,
		Quantity: defaultPlantQuantity,
	})
	if err != nil {
		return fmt.Errorf("seeding plant %q: %w", name, err)
	}
	sc.Plants[name] = plant
	return nil
}

// plantBody builds a request body from a plant table, resolving the
// category name to a sub-category id.
func (s *Suite) plantBody(ctx context.Context, sc *scenario, token string, table *godog.Table) (int64, map[string]any, error) {
	rec, err := tableRecord(table)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range rec {
		rec[k] = sc.expand(v)
	}

	categoryID, err := s.subCategoryID(ctx, token, rec["category"])
	if err != nil {
		return 0, nil, err
	}
	body := map[string]any{
		"name":     rec["name"],
		"price":    jsonValue(rec["price"]),
		"quantity": jsonValue(rec["quantity"]),
	}
	return categoryID, body, nil
}

// subCategoryID finds the sub-category called name, or the first one.
func (s *Suite) subCategoryID(ctx context.Context, token, name string) (int64, error) {
	subs, err := s.client.SubCategoryList(ctx, token)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, fmt.Errorf("no sub-categories returned; cannot map category %q", name)
	}
	cat, ok := nursery.FindByName(subs, name, func(c nursery.Category) string { return c.Name })
	if !ok {
		cat = subs[0]
	}
	return cat.ID, nil
}

func (s *Suite) createPlantViaAPI(ctx context.Context, table *godog.Table) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	categoryID, body, err := s.plantBody(ctx, sc, token, table)
	if err != nil {
		return err
	}
	if err := sc.record(s.client.CreatePlantBody(ctx, token, categoryID, body)); err != nil {
		return err
	}
	if sc.LastResponse.OK() {
		var p nursery.Plant
		if err := sc.LastResponse.JSON(&p); err != nil {
			return err
		}
		sc.Plants[p.Name] = p
	}
	return nil
}

func (s *Suite) findPlant(ctx context.Context, token, name string) (nursery.Plant, error) {
	p, ok, _, err := s.client.FindPlant(ctx, token, name)
	if err != nil {
		return p, err
	}
	if !ok {
		return p, fmt.Errorf("plant %q: %w", name, fixtures.ErrNotFound)
	}
	return p, nil
}

func (s *Suite) updatePlantViaAPI(ctx context.Context, name string, table *godog.Table) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	plant, err := s.findPlant(ctx, token, sc.expand(name))
	if err != nil {
		return err
	}
	categoryID, body, err := s.plantBody(ctx, sc, token, table)
	if err != nil {
		return err
	}
	body["categoryId"] = categoryID
	return sc.record(s.client.UpdatePlantBody(ctx, token, plant.ID, body))
}

func (s *Suite) deletePlantViaAPI(ctx context.Context, name string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	plant, err := s.findPlant(ctx, token, sc.expand(name))
	if err != nil {
		return err
	}
	return sc.record(s.client.DeletePlant(ctx, token, plant.ID))
}

func (s *Suite) getAllPlantsViaAPI(ctx context.Context) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	return sc.record(s.client.ListPlants(ctx, token))
}

func (s *Suite) searchPlantsViaAPI(ctx context.Context, term string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	sc.SearchTerm = sc.expand(term)
	return sc.record(s.client.SearchPlants(ctx, token, sc.SearchTerm, 0, 10))
}
