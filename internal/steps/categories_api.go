package steps

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/stretchr/testify/assert"

	"github.com/greenhouse-qa/greenhouse/internal/nursery"
)

func (s *Suite) categoryAPISteps() StepCategory {
	return StepCategory{
		Name:        "Categories API",
		Description: "Category fixtures, requests and assertions through the API",
		Surface:     SurfaceAPI,
		Steps: []StepDef{
			{
				Group:       "Givens",
				Pattern:     `^a category exists via API named "([^"]*)"$`,
				Description: "Create a main category unless one with this name exists",
				Example:     `a category exists via API named "Roses"`,
				Handler:     s.categoryExistsViaAPI,
			},
			{
				Group:       "Givens",
				Pattern:     `^a sub category exists via API named "([^"]*)"$`,
				Description: "Make sure a sub-category with this name exists, replacing a main category of the same name",
				Example:     `a sub category exists via API named "Bulbs"`,
				Handler:     s.subCategoryExistsViaAPI,
			},
			{
				Group:       "Givens",
				Pattern:     `^no category exists via API named "([^"]*)"$`,
				Description: "Delete the category with this name if it exists",
				Example:     `no category exists via API named "Cacti"`,
				Handler:     s.noCategoryViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I create a category via API with name "([^"]*)"$`,
				Description: "POST a new main category with the scenario token",
				Example:     `I create a category via API with name "Ferns"`,
				Handler:     s.createCategoryViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I create a sub category via API with name "([^"]*)" under "([^"]*)"$`,
				Description: "POST a sub-category under a category set up earlier",
				Example:     `I create a sub category via API with name "Tulips" under "Bulbs"`,
				Handler:     s.createSubCategoryViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I update category "([^"]*)" via API with name "([^"]*)"$`,
				Description: `Rename a category set up earlier; "undefined" sends no name`,
				Example:     `I update category "Roses" via API with name "Rosa"`,
				Handler:     s.updateCategoryViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I delete category "([^"]*)" via API$`,
				Description: "Delete a category set up earlier",
				Example:     `I delete category "Roses" via API`,
				Handler:     s.deleteCategoryViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I get all categories via API$`,
				Description: "List every category",
				Example:     `I get all categories via API`,
				Handler:     s.getAllCategoriesViaAPI,
			},
			{
				Group:       "Requests",
				Pattern:     `^I search categories via API for "([^"]*)"$`,
				Description: "Search the first page of categories (size 10)",
				Example:     `I search categories via API for "Ros"`,
				Handler:     s.searchCategoriesViaAPI,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the response error should be "([^"]*)"$`,
				Description: "The last response is a 4xx error whose error or message equals the text",
				Example:     `the response error should be "Category 'Roses' already exists"`,
				Handler:     s.responseErrorShouldBe,
			},
			{
				Group:       "Assertions",
				Pattern:     `^the response should contain categories start with "([^"]*)"$`,
				Description: "At least one listed category name starts with the prefix",
				Example:     `the response should contain categories start with "Ros"`,
				Handler:     s.categoriesStartWith,
			},
			{
				Group:       "Assertions",
				Pattern:     `^a search for category "([^"]*)" via API returns (\d+) match(?:es)?$`,
				Description: "Search categories and count the names containing the term",
				Example:     `a search for category "Roses" via API returns 0 matches`,
				Handler:     s.categorySearchReturns,
			},
		},
	}
}

func (s *Suite) categoryExistsViaAPI(ctx context.Context, name string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	name = sc.expand(name)
	cat, err := s.fixtures.EnsureCategory(ctx, name)
	if err != nil {
		return err
	}
	sc.Categories[name] = cat
	return nil
}

func (s *Suite) subCategoryExistsViaAPI(ctx context.Context, name string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	name = sc.expand(name)
	cat, err := s.fixtures.EnsureSubCategory(ctx, name)
	if err != nil {
		return err
	}
	sc.Categories[name] = cat
	return nil
}

func (s *Suite) noCategoryViaAPI(ctx context.Context, name string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	name = sc.expand(name)
	if err := s.fixtures.EnsureNoCategory(ctx, name); err != nil {
		return err
	}
	delete(sc.Categories, name)
	return nil
}

func (s *Suite) createCategoryViaAPI(ctx context.Context, name string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	name = sc.expand(name)
	resp, err := s.client.CreateCategory(ctx, token, name, 0)
	if err := sc.record(resp, err); err != nil {
		return err
	}
	return sc.rememberCategory(resp)
}

func (s *Suite) createSubCategoryViaAPI(ctx context.Context, name, parent string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	p, err := sc.category(sc.expand(parent))
	if err != nil {
		return err
	}
	resp, err := s.client.CreateCategory(ctx, token, sc.expand(name), p.ID)
	if err := sc.record(resp, err); err != nil {
		return err
	}
	return sc.rememberCategory(resp)
}

// rememberCategory keeps a successfully created category for later steps.
func (sc *scenario) rememberCategory(resp *nursery.Response) error {
	if !resp.OK() {
		return nil
	}
	var cat nursery.Category
	if err := resp.JSON(&cat); err != nil {
		return err
	}
	sc.Categories[cat.Name] = cat
	return nil
}

func (s *Suite) updateCategoryViaAPI(ctx context.Context, name, newName string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	cat, err := sc.category(sc.expand(name))
	if err != nil {
		return err
	}
	newName = sc.expand(newName)
	if newName == "undefined" {
		newName = ""
	}
	return sc.record(s.client.UpdateCategory(ctx, token, cat.ID, newName))
}

func (s *Suite) deleteCategoryViaAPI(ctx context.Context, name string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	cat, err := sc.category(sc.expand(name))
	if err != nil {
		return err
	}
	return sc.record(s.client.DeleteCategory(ctx, token, cat.ID))
}

func (s *Suite) getAllCategoriesViaAPI(ctx context.Context) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	return sc.record(s.client.ListCategories(ctx, token))
}

func (s *Suite) searchCategoriesViaAPI(ctx context.Context, term string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	sc.SearchTerm = sc.expand(term)
	return sc.record(s.client.SearchCategories(ctx, token, sc.SearchTerm, 0, 10))
}

var errorStatuses = []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict}

func (s *Suite) responseErrorShouldBe(ctx context.Context, want string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	if err := verify(func(t assert.TestingT) {
		assert.Contains(t, errorStatuses, resp.Status, "status of %s %s", resp.Method, resp.Path)
	}); err != nil {
		return err
	}
	body, err := nursery.DecodeError(resp)
	if err != nil {
		return err
	}
	want = sc.expand(want)
	if body.Error == want || body.Message == want {
		return nil
	}
	return fmt.Errorf("expected error %q, got error %q with message %q", want, body.Error, body.Message)
}

func (s *Suite) categoriesStartWith(ctx context.Context, prefix string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	cats, err := nursery.DecodeList[nursery.Category](resp)
	if err != nil {
		return err
	}
	prefix = strings.ToUpper(sc.expand(prefix))
	return verify(func(t assert.TestingT) {
		if !assert.NotEmpty(t, cats, "categories in %s %s", resp.Method, resp.Path) {
			return
		}
		for _, c := range cats {
			if strings.HasPrefix(strings.ToUpper(c.Name), prefix) {
				return
			}
		}
		t.Errorf("no category name starts with %q among %d categories", prefix, len(cats))
	})
}

// searchPageSize is the page size used when counting search matches; every
// page is read.
const searchPageSize = 50

func (s *Suite) categorySearchReturns(ctx context.Context, term string, want int) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token := sc.Token
	if token == "" {
		if token, err = s.fixtures.AdminToken(ctx); err != nil {
			return err
		}
	}
	term = sc.expand(term)
	var got int
	for n, pages := 0, 1; n < pages; n++ {
		resp, err := s.client.SearchCategories(ctx, token, term, n, searchPageSize)
		if err != nil {
			return err
		}
		if err := resp.Expect(http.StatusOK); err != nil {
			return err
		}
		page, err := nursery.DecodePage[nursery.Category](resp)
		if err != nil {
			return err
		}
		for _, c := range page.Content {
			if containsFold(c.Name, term) {
				got++
			}
		}
		pages = page.TotalPages
	}
	return verify(func(t assert.TestingT) {
		assert.Equal(t, want, got, "categories matching %q", term)
	})
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToUpper(s), strings.ToUpper(sub))
}
