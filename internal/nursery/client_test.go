package nursery_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/nursery"
	"github.com/greenhouse-qa/greenhouse/internal/nurserytest"
)

func newClient(t *testing.T) (*nursery.Client, *nurserytest.Server) {
	t.Helper()
	srv := nurserytest.New()
	t.Cleanup(srv.Close)
	return nursery.New(srv.Env()), srv
}

func adminToken(t *testing.T, c *nursery.Client) string {
	t.Helper()
	token, err := c.LoginAs(context.Background(), config.RoleAdmin)
	if err != nil {
		t.Fatalf("login as admin: %v", err)
	}
	return token
}

func TestLogin(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		username   string
		password   string
		wantStatus int
		wantErr    bool
	}{
		{name: "admin", username: "admin", password: "admin123", wantStatus: 200},
		{name: "user", username: "user", password: "user123", wantStatus: 200},
		{name: "wrong password", username: "admin", password: "nope", wantStatus: 401, wantErr: true},
		{name: "unknown user", username: "ghost", password: "x", wantStatus: 401, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, resp, err := c.Login(ctx, tt.username, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Login() error = %v, wantErr %v", err, tt.wantErr)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.Status, tt.wantStatus)
			}
			if !tt.wantErr && token == "" {
				t.Error("expected a token")
			}
			if tt.wantErr {
				var se *nursery.StatusError
				if !errors.As(err, &se) {
					t.Errorf("expected *StatusError, got %T", err)
				}
			}
		})
	}
}

func TestLoginAs_UnknownRole(t *testing.T) {
	c, _ := newClient(t)
	if _, err := c.LoginAs(context.Background(), "guest"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestLogout_InvalidatesToken(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	token := adminToken(t, c)

	resp, err := c.Logout(ctx, token)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("logout status = %d", resp.Status)
	}

	resp, err = c.ListPlants(ctx, token)
	if err != nil {
		t.Fatalf("list plants: %v", err)
	}
	if resp.Status != http.StatusUnauthorized {
		t.Errorf("status after logout = %d, want 401", resp.Status)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	token := adminToken(t, c)

	resp, err := c.CreateCategory(ctx, token, "Flowers", 0)
	if err != nil {
		t.Fatalf("create main: %v", err)
	}
	if err := resp.Expect(http.StatusCreated); err != nil {
		t.Fatal(err)
	}
	var main nursery.Category
	if err := resp.JSON(&main); err != nil {
		t.Fatal(err)
	}
	if !main.IsMain() {
		t.Errorf("expected main category, got parent %q", main.ParentName)
	}

	resp, err = c.CreateCategory(ctx, token, "Roses", main.ID)
	if err != nil {
		t.Fatalf("create sub: %v", err)
	}
	var sub nursery.Category
	if err := resp.JSON(&sub); err != nil {
		t.Fatal(err)
	}
	if sub.IsMain() || sub.ParentName != "Flowers" {
		t.Errorf("sub parent = %q, want Flowers", sub.ParentName)
	}

	found, ok, err := c.FindCategory(ctx, token, "roses")
	if err != nil || !ok {
		t.Fatalf("FindCategory() = %v, %v", ok, err)
	}
	if found.ID != sub.ID {
		t.Errorf("found id %d, want %d", found.ID, sub.ID)
	}

	resp, _ = c.CreateCategory(ctx, token, "Roses", main.ID)
	if resp.Status != http.StatusBadRequest {
		t.Errorf("duplicate status = %d, want 400", resp.Status)
	}
	apiErr, err := nursery.DecodeError(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(apiErr.Error, "already exists") {
		t.Errorf("duplicate error = %q", apiErr.Error)
	}

	resp, _ = c.UpdateCategory(ctx, token, sub.ID, "Tulips")
	if err := resp.Expect(http.StatusOK); err != nil {
		t.Fatal(err)
	}

	resp, _ = c.DeleteCategory(ctx, token, sub.ID)
	if err := resp.Expect(http.StatusOK); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.FindCategory(ctx, token, "Tulips"); ok {
		t.Error("category still present after delete")
	}
}

func TestCategory_UserForbidden(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	token, err := c.LoginAs(ctx, config.RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.CreateCategory(ctx, token, "Cactus", 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.Status)
	}

	resp, _ = c.ListCategories(ctx, token)
	if resp.Status != http.StatusOK {
		t.Errorf("list status = %d, want 200", resp.Status)
	}
}

func TestSellPlant(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	token := adminToken(t, c)

	var main, sub nursery.Category
	resp, _ := c.CreateCategory(ctx, token, "Flowers", 0)
	resp.JSON(&main)
	resp, _ = c.CreateCategory(ctx, token, "Roses", main.ID)
	resp.JSON(&sub)

	resp, err := c.CreatePlant(ctx, token, sub.ID, nursery.PlantInput{Name: "Red Rose", Price: 12.5, Quantity: 10})
	if err != nil {
		t.Fatal(err)
	}
	if err := resp.Expect(http.StatusCreated); err != nil {
		t.Fatal(err)
	}
	var plant nursery.Plant
	resp.JSON(&plant)

	resp, err = c.SellPlant(ctx, token, plant.ID, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := resp.Expect(http.StatusCreated); err != nil {
		t.Fatal(err)
	}
	var sale nursery.Sale
	if err := resp.JSON(&sale); err != nil {
		t.Fatal(err)
	}
	if err := sale.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if sale.TotalPrice != 50 {
		t.Errorf("total = %v, want 50", sale.TotalPrice)
	}

	resp, _ = c.SellPlant(ctx, token, plant.ID, 100)
	if resp.Status != http.StatusBadRequest {
		t.Errorf("oversell status = %d, want 400", resp.Status)
	}

	after, ok, _, err := c.FindPlant(ctx, token, "red rose")
	if err != nil || !ok {
		t.Fatalf("FindPlant() = %v, %v", ok, err)
	}
	if after.Quantity != 6 {
		t.Errorf("stock = %d, want 6", after.Quantity)
	}
}

func TestSalesPage_Consistent(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	token := adminToken(t, c)

	var main, sub nursery.Category
	resp, _ := c.CreateCategory(ctx, token, "Flowers", 0)
	resp.JSON(&main)
	resp, _ = c.CreateCategory(ctx, token, "Roses", main.ID)
	resp.JSON(&sub)
	resp, _ = c.CreatePlant(ctx, token, sub.ID, nursery.PlantInput{Name: "Rose", Price: 2, Quantity: 50})
	var plant nursery.Plant
	resp.JSON(&plant)

	for range 7 {
		if resp, _ := c.SellPlant(ctx, token, plant.ID, 1); resp.Status != http.StatusCreated {
			t.Fatalf("sell status = %d", resp.Status)
		}
	}

	for _, page := range []int{0, 1, 5} {
		resp, err := c.SalesPage(ctx, token, page, 3)
		if err != nil {
			t.Fatal(err)
		}
		p, err := nursery.DecodePage[nursery.Sale](resp)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Consistent(); err != nil {
			t.Errorf("page %d: %v", page, err)
		}
		if p.TotalPages != 3 {
			t.Errorf("page %d: totalPages = %d, want 3", page, p.TotalPages)
		}
	}
}

func TestSearchPlants_FallsBackToList(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/paged") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`[{"id":1,"name":"Fern"}]`))
	}))
	defer srv.Close()

	env := &config.Env{APIBaseURL: srv.URL, Endpoints: config.Endpoints{Plants: "/api/plants"}}
	resp, err := nursery.New(env).SearchPlants(context.Background(), "t", "fern", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	plants, err := nursery.DecodeList[nursery.Plant](resp)
	if err != nil {
		t.Fatal(err)
	}
	if len(plants) != 1 || plants[0].Name != "Fern" {
		t.Errorf("plants = %+v", plants)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits["/api/plants/paged"] != 1 || hits["/api/plants"] != 1 {
		t.Errorf("hits = %v", hits)
	}
}

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "array", body: `[{"id":1,"name":"A"},{"id":2,"name":"B"}]`, want: 2},
		{name: "data envelope", body: `{"data":[{"id":1,"name":"A"}]}`, want: 1},
		{name: "content envelope", body: `{"content":[{"id":1,"name":"A"}],"totalPages":1}`, want: 1},
		{name: "empty object", body: `{}`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nursery.DecodeList[nursery.Category](&nursery.Response{Body: []byte(tt.body)})
			if err != nil {
				t.Fatalf("DecodeList() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}

	if _, err := nursery.DecodeList[nursery.Category](&nursery.Response{Method: "GET", Path: "/x", Body: []byte(`oops`)}); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestResponse_JSONPath(t *testing.T) {
	resp := &nursery.Response{Body: []byte(`{"content":[{"plant":{"name":"Rose"}}],"totalPages":2}`)}

	tests := []struct {
		path    string
		want    any
		wantErr bool
	}{
		{path: "totalPages", want: float64(2)},
		{path: "content[0].plant.name", want: "Rose"},
		{path: "content[3].plant", wantErr: true},
		{path: "missing", wantErr: true},
		{path: "totalPages.x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := resp.JSONPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("JSONPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("JSONPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestPage_Consistent(t *testing.T) {
	tests := []struct {
		name    string
		page    nursery.Page[int]
		wantErr bool
	}{
		{name: "full page", page: nursery.Page[int]{Content: []int{1, 2}, Size: 2, TotalElements: 3, TotalPages: 2}},
		{name: "empty last", page: nursery.Page[int]{Size: 2, TotalElements: 0, TotalPages: 0, Empty: true}},
		{name: "overfull", page: nursery.Page[int]{Content: []int{1, 2, 3}, Size: 2, TotalElements: 3, TotalPages: 2}, wantErr: true},
		{name: "wrong total pages", page: nursery.Page[int]{Content: []int{1}, Size: 2, TotalElements: 5, TotalPages: 2}, wantErr: true},
		{name: "empty flag lies", page: nursery.Page[int]{Content: []int{1}, Size: 2, TotalElements: 1, TotalPages: 1, Empty: true}, wantErr: true},
		{name: "zero size", page: nursery.Page[int]{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.page.Consistent(); (err != nil) != tt.wantErr {
				t.Errorf("Consistent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSale_Validate(t *testing.T) {
	good := nursery.Sale{ID: 1, Plant: nursery.SalePlant{ID: 2, Price: 10}, Quantity: 3, TotalPrice: 30, SoldAt: "2024-01-01T00:00:00Z"}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	bad := good
	bad.TotalPrice = 31
	if err := bad.Validate(); err == nil {
		t.Error("expected total price mismatch")
	}

	bad = good
	bad.SoldAt = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected missing soldAt")
	}
}

func TestWaitReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"UP"}`))
	}))
	defer srv.Close()

	env := &config.Env{APIBaseURL: srv.URL, Endpoints: config.Endpoints{Health: "/api/health"}}
	if err := nursery.New(env).WaitReady(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("WaitReady() = %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestWaitReady_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	env := &config.Env{APIBaseURL: srv.URL, Endpoints: config.Endpoints{Health: "/api/health"}}
	if err := nursery.New(env).WaitReady(context.Background(), 500*time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
}
