package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stretchr/testify/assert"
)

func (s *Suite) apiSteps() StepCategory {
	return StepCategory{
		Name:        "API",
		Description: "Raw requests and response assertions shared by every API area",
		Surface:     SurfaceAPI,
		Steps: []StepDef{
			{
				Group:       "Requests",
				Pattern:     `^I send a GET request to "([^"]*)"$`,
				Description: "GET a path with the scenario token",
				Example:     `I send a GET request to "/api/plants"`,
				Handler:     s.sendGet,
			},
			{
				Group:       "Requests",
				Pattern:     `^I send a GET request to "([^"]*)" without authentication$`,
				Description: "GET a path without a token",
				Example:     `I send a GET request to "/api/health" without authentication`,
				Handler:     s.sendGetAnonymous,
			},
			{
				Group:       "Requests",
				Pattern:     `^I send a POST request to "([^"]*)" with the token$`,
				Description: "POST to a path with the scenario token and no body",
				Example:     `I send a POST request to "/api/auth/logout" with the token`,
				Handler:     s.sendPost,
			},
			{
				Group:       "Requests",
				Pattern:     `^I request "([^"]*)"$`,
				Description: `Fetch "Sales Summary", "Categories Summary" or "Plants Summary"`,
				Example:     `I request "Plants Summary"`,
				Handler:     s.requestSummary,
			},
			{
				Group:       "Status",
				Pattern:     `^the response status should be (\d+)$`,
				Description: "Assert the status of the last response",
				Example:     `the response status should be 200`,
				Handler:     s.statusShouldBe,
			},
			{
				Group:       "Status",
				Pattern:     `^the response should contain an access denied error$`,
				Description: "The last response is 401 or 403",
				Example:     `the response should contain an access denied error`,
				Handler:     s.accessDenied,
			},
			{
				Group:       "Status",
				Pattern:     `^the token should be invalidated$`,
				Description: "The scenario token is now rejected with 401",
				Example:     `the token should be invalidated`,
				Handler:     s.tokenInvalidated,
			},
			{
				Group:       "Body",
				Pattern:     `^the response should be a JSON array$`,
				Description: "The body is a top-level array",
				Example:     `the response should be a JSON array`,
				Handler:     s.isJSONArray,
			},
			{
				Group:       "Body",
				Pattern:     `^the response should contain sales data$`,
				Description: "The body is a list of sales",
				Example:     `the response should contain sales data`,
				Handler:     s.isJSONArray,
			},
			{
				Group:       "Body",
				Pattern:     `^the response should contain (plants|categories|sales) list$`,
				Description: "The body is an array whose first item looks like the entity",
				Example:     `the response should contain plants list`,
				Handler:     s.containsList,
			},
			{
				Group:       "Body",
				Pattern:     `^the response should contain health status$`,
				Description: "The body carries a string status",
				Example:     `the response should contain health status`,
				Handler:     s.healthStatus,
			},
			{
				Group:       "JSON",
				Pattern:     `^the response json "([^"]*)" is "([^"]*)"$`,
				Description: "Compare a dotted JSON path (with [n] indexes) to a value",
				Example:     `the response json "content[0].plant.name" is "S_ROSE"`,
				Handler:     s.jsonPathIs,
			},
			{
				Group:       "JSON",
				Pattern:     `^the response json "([^"]*)" exists$`,
				Description: "A JSON path is present",
				Example:     `the response json "totalPages" exists`,
				Handler:     s.jsonPathExists,
			},
			{
				Group:       "JSON",
				Pattern:     `^the response json "([^"]*)" does not exist$`,
				Description: "A JSON path is absent",
				Example:     `the response json "password" does not exist`,
				Handler:     s.jsonPathMissing,
			},
			{
				Group:       "Timing",
				Pattern:     `^the response time is less than "([^"]*)"$`,
				Description: "The last request finished within a Go duration",
				Example:     `the response time is less than "500ms"`,
				Handler:     s.responseTimeLessThan,
			},
		},
	}
}

var summaries = map[string]func(s *Suite) string{
	"Sales Summary":      func(s *Suite) string { return s.env.Endpoints.Sales },
	"Categories Summary": func(s *Suite) string { return s.env.Endpoints.Categories + "/summary" },
	"Plants Summary":     func(s *Suite) string { return s.env.Endpoints.Plants + "/summary" },
}

func (s *Suite) send(ctx context.Context, method, path string, withToken bool) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	var token string
	if withToken {
		if token, err = sc.token(); err != nil {
			return err
		}
	}
	return sc.record(s.client.Do(ctx, method, sc.expand(path), token, nil))
}

func (s *Suite) sendGet(ctx context.Context, path string) error {
	return s.send(ctx, http.MethodGet, path, true)
}

func (s *Suite) sendGetAnonymous(ctx context.Context, path string) error {
	return s.send(ctx, http.MethodGet, path, false)
}

func (s *Suite) sendPost(ctx context.Context, path string) error {
	return s.send(ctx, http.MethodPost, path, true)
}

func (s *Suite) requestSummary(ctx context.Context, name string) error {
	endpoint, ok := summaries[name]
	if !ok {
		return fmt.Errorf("unknown resource %q (expected Sales Summary, Categories Summary or Plants Summary)", name)
	}
	return s.sendGet(ctx, endpoint(s))
}

func (s *Suite) statusShouldBe(ctx context.Context, want int) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	return verify(func(t assert.TestingT) {
		assert.Equal(t, want, resp.Status, "status of %s %s, body: %s", resp.Method, resp.Path, resp.Body)
	})
}

func (s *Suite) accessDenied(ctx context.Context) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	return verify(func(t assert.TestingT) {
		assert.Contains(t, []int{http.StatusUnauthorized, http.StatusForbidden}, resp.Status, "status of %s %s", resp.Method, resp.Path)
	})
}

func (s *Suite) tokenInvalidated(ctx context.Context) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	token, err := sc.token()
	if err != nil {
		return err
	}
	resp, err := s.client.ListPlants(ctx, token)
	if err != nil {
		return err
	}
	return resp.Expect(http.StatusUnauthorized)
}

func (s *Suite) isJSONArray(ctx context.Context) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	if !resp.IsJSONArray() {
		return fmt.Errorf("%s %s did not return a JSON array: %.200s", resp.Method, resp.Path, resp.Body)
	}
	return nil
}

// listFields are the keys the first item of each list must carry. A sale
// names its plant either as a nested object or as plantId.
var listFields = map[string][][]string{
	"plants":     {{"id"}, {"name"}},
	"categories": {{"id"}, {"name"}},
	"sales":      {{"id"}, {"plant", "plantId"}},
}

func (s *Suite) containsList(ctx context.Context, kind string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	var items []map[string]json.RawMessage
	if err := resp.JSON(&items); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for _, anyOf := range listFields[kind] {
		if !hasAnyKey(items[0], anyOf) {
			return fmt.Errorf("first %s item has none of %v", kind, anyOf)
		}
	}
	return nil
}

func hasAnyKey(m map[string]json.RawMessage, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func (s *Suite) healthStatus(ctx context.Context) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	status, err := resp.JSONPath("status")
	if err != nil {
		return err
	}
	if _, ok := status.(string); !ok {
		return fmt.Errorf("health status is %T, expected a string", status)
	}
	return nil
}

func (s *Suite) jsonPathIs(ctx context.Context, path, want string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	got, err := resp.JSONPath(path)
	if err != nil {
		return err
	}
	want = sc.expand(want)
	if actual := fmt.Sprintf("%v", got); actual != want {
		return fmt.Errorf("JSON path %q: expected %q, got %q", path, want, actual)
	}
	return nil
}

func (s *Suite) jsonPathExists(ctx context.Context, path string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	_, err = resp.JSONPath(path)
	return err
}

func (s *Suite) jsonPathMissing(ctx context.Context, path string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	if _, err := resp.JSONPath(path); err == nil {
		return fmt.Errorf("JSON path %q exists but should not", path)
	}
	return nil
}

func (s *Suite) responseTimeLessThan(ctx context.Context, limit string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	resp, err := sc.response()
	if err != nil {
		return err
	}
	bound, err := time.ParseDuration(limit)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if resp.Duration >= bound {
		return fmt.Errorf("response time %v exceeded %v", resp.Duration, bound)
	}
	return nil
}
