package fixtures

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/greenhouse-qa/greenhouse/internal/nursery"
	"github.com/greenhouse-qa/greenhouse/internal/nurserytest"
	"go.uber.org/goleak"
)

func newService(t *testing.T) (*Service, *nursery.Client) {
	t.Helper()
	srv := nurserytest.New()
	t.Cleanup(srv.Close)
	client := nursery.New(srv.Env())
	return New(client, nil), client
}

func countCategories(t *testing.T, s *Service, c *nursery.Client, name string) int {
	t.Helper()
	token, _ := s.AdminToken(context.Background())
	list, err := c.Categories(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, cat := range list {
		if strings.EqualFold(cat.Name, name) {
			n++
		}
	}
	return n
}

func TestEnsureCategory_Idempotent(t *testing.T) {
	s, c := newService(t)
	ctx := context.Background()

	first, err := s.EnsureCategory(ctx, "Flowers")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.EnsureCategory(ctx, "flowers")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %d vs %d", first.ID, second.ID)
	}
	if n := countCategories(t, s, c, "Flowers"); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestEnsureSubCategory(t *testing.T) {
	t.Run("absent creates under Main", func(t *testing.T) {
		s, c := newService(t)
		cat, err := s.EnsureSubCategory(context.Background(), "Roses")
		if err != nil {
			t.Fatal(err)
		}
		if cat.ParentName != DefaultMainCategory {
			t.Errorf("parent = %q, want %q", cat.ParentName, DefaultMainCategory)
		}
		if n := countCategories(t, s, c, DefaultMainCategory); n != 1 {
			t.Errorf("Main count = %d, want 1", n)
		}
	})

	t.Run("existing sub is kept", func(t *testing.T) {
		s, _ := newService(t)
		ctx := context.Background()
		first, err := s.EnsureSubCategory(ctx, "Roses")
		if err != nil {
			t.Fatal(err)
		}
		second, err := s.EnsureSubCategory(ctx, "Roses")
		if err != nil {
			t.Fatal(err)
		}
		if first.ID != second.ID {
			t.Errorf("sub-category recreated: %d vs %d", first.ID, second.ID)
		}
	})

	t.Run("main is replaced", func(t *testing.T) {
		s, c := newService(t)
		ctx := context.Background()
		main, err := s.EnsureCategory(ctx, "Roses")
		if err != nil {
			t.Fatal(err)
		}
		sub, err := s.EnsureSubCategory(ctx, "Roses")
		if err != nil {
			t.Fatal(err)
		}
		if sub.ID == main.ID || sub.IsMain() {
			t.Errorf("expected a new sub-category, got %+v", sub)
		}
		if n := countCategories(t, s, c, "Roses"); n != 1 {
			t.Errorf("count = %d, want 1", n)
		}
	})

	t.Run("existing main parent is reused", func(t *testing.T) {
		s, c := newService(t)
		ctx := context.Background()
		if _, err := s.EnsureCategory(ctx, "Garden"); err != nil {
			t.Fatal(err)
		}
		sub, err := s.EnsureSubCategory(ctx, "Tulips")
		if err != nil {
			t.Fatal(err)
		}
		if sub.ParentName != "Garden" {
			t.Errorf("parent = %q, want Garden", sub.ParentName)
		}
		if n := countCategories(t, s, c, DefaultMainCategory); n != 0 {
			t.Errorf("Main created unnecessarily")
		}
	})
}

func TestEnsureSubCategory_ConcurrentShareMain(t *testing.T) {
	for round := range 5 {
		s, c := newService(t)
		var wg sync.WaitGroup
		errs := make([]error, 8)
		parents := make([]string, 8)
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cat, err := s.EnsureSubCategory(context.Background(), fmt.Sprintf("Sub%d", i))
				errs[i], parents[i] = err, cat.ParentName
			}()
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("round %d: Sub%d: %v", round, i, err)
			}
			if parents[i] != DefaultMainCategory {
				t.Errorf("round %d: Sub%d parent = %q", round, i, parents[i])
			}
		}
		if n := countCategories(t, s, c, DefaultMainCategory); n != 1 {
			t.Fatalf("round %d: Main count = %d, want 1", round, n)
		}
	}
}

func TestEnsureCategory_RacesSubCategoryForMain(t *testing.T) {
	s, c := newService(t)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = s.EnsureCategory(context.Background(), DefaultMainCategory)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = s.EnsureSubCategory(context.Background(), "Tulips")
	}()
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		t.Fatal(err)
	}
	if n := countCategories(t, s, c, DefaultMainCategory); n != 1 {
		t.Errorf("Main count = %d, want 1", n)
	}
}

func TestService_LogsInAgainAfterRejectedToken(t *testing.T) {
	s, c := newService(t)
	ctx := context.Background()

	stale, err := s.AdminToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Logout(ctx, stale); err != nil {
		t.Fatal(err)
	}

	if _, err := s.EnsureCategory(ctx, "Ferns"); err != nil {
		t.Fatalf("EnsureCategory with an expired token: %v", err)
	}
	fresh, _ := s.AdminToken(ctx)
	if fresh == stale {
		t.Error("cached token was not replaced")
	}
	if n := countCategories(t, s, c, "Ferns"); n != 1 {
		t.Errorf("Ferns count = %d, want 1", n)
	}

	if _, err := c.Logout(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FindPlant(ctx, "Nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindPlant error = %v, want ErrNotFound after a fresh login", err)
	}
}

func TestEnsureNoCategory(t *testing.T) {
	s, c := newService(t)
	ctx := context.Background()

	if err := s.EnsureNoCategory(ctx, "Ghosts"); err != nil {
		t.Fatalf("absent: %v", err)
	}
	if _, err := s.EnsureCategory(ctx, "Ghosts"); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureNoCategory(ctx, "Ghosts"); err != nil {
		t.Fatal(err)
	}
	if n := countCategories(t, s, c, "Ghosts"); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestEnsurePlant(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	if _, err := s.EnsurePlant(ctx, PlantSpec{Name: "Rose", Category: "Roses", Price: 10, Quantity: 5}); err == nil {
		t.Fatal("expected error without sub-categories")
	}

	if _, err := s.EnsureSubCategory(ctx, "Orchid"); err != nil {
		t.Fatal(err)
	}
	first, err := s.EnsurePlant(ctx, PlantSpec{Name: "Rose", Category: "Unknown", Price: 10, Quantity: 5})
	if err != nil {
		t.Fatal(err)
	}
	if first.Category == nil || first.Category.Name != "Orchid" {
		t.Errorf("category = %+v, want fallback Orchid", first.Category)
	}

	second, err := s.EnsurePlant(ctx, PlantSpec{Name: "rose", Category: "Orchid", Price: 99, Quantity: 1})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("plant recreated: %d vs %d", first.ID, second.ID)
	}
}

func TestFindPlant_ListsAvailable(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	if _, err := s.EnsureSubCategory(ctx, "Orchid"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.EnsurePlant(ctx, PlantSpec{Name: "Fern", Category: "Orchid", Price: 1, Quantity: 1}); err != nil {
		t.Fatal(err)
	}

	_, err := s.FindPlant(ctx, "Cactus")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "Fern") {
		t.Errorf("error %q does not list available plants", err)
	}
}

func TestSales(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := nurserytest.New()
	defer srv.Close()
	c := nursery.New(srv.Env())
	s := New(c, nil)
	ctx := context.Background()
	if _, err := s.EnsureSubCategory(ctx, "Roses"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.EnsurePlant(ctx, PlantSpec{Name: "S_ROSE", Category: "Roses", Price: 3, Quantity: 200}); err != nil {
		t.Fatal(err)
	}

	sale, err := s.EnsureSale(ctx, "S_ROSE")
	if err != nil {
		t.Fatal(err)
	}
	if sale.Quantity != 5 {
		t.Errorf("quantity = %d, want 5", sale.Quantity)
	}
	again, err := s.EnsureSale(ctx, "S_ROSE")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != sale.ID {
		t.Errorf("EnsureSale created a second sale")
	}

	if err := s.EnsureSalesCount(ctx, 12, "S_ROSE"); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureSalesCount(ctx, 5, "S_ROSE"); err != nil {
		t.Fatal(err)
	}
	token, _ := s.AdminToken(ctx)
	sales, err := c.Sales(ctx, token)
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 12 {
		t.Errorf("sales = %d, want 12", len(sales))
	}
	for _, sale := range sales {
		if sale.Quantity < 1 || sale.Quantity > 5 {
			t.Errorf("sale %d quantity %d out of range", sale.ID, sale.Quantity)
		}
	}

	if err := s.DeleteAllSales(ctx); err != nil {
		t.Fatal(err)
	}
	sales, _ = c.Sales(ctx, token)
	if len(sales) != 0 {
		t.Errorf("sales after delete = %d", len(sales))
	}
}

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(short, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second lock err = %v, want deadline exceeded", err)
	}

	other, err := l.Lock(ctx, "other")
	if err != nil {
		t.Fatalf("independent key blocked: %v", err)
	}
	other()

	unlock()
	unlock()
	again, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	again()
}

func TestMemoryLocker_Serialises(t *testing.T) {
	l := NewMemoryLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "shared")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max holders = %d, want 1", maxSeen)
	}
}
