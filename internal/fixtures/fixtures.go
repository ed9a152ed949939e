// Package fixtures establishes backend preconditions through the API. Every
// operation is idempotent: running it twice leaves the same state as once.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"

	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/nursery"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultMainCategory is created when a sub-category needs a parent and no
// main category exists yet.
const DefaultMainCategory = "Main"

// ErrNotFound is wrapped by lookups whose target does not exist.
var ErrNotFound = errors.New("not found")

// maxParallel bounds concurrent API calls during bulk setup.
const maxParallel = 4

// Service runs fixtures as the admin role.
type Service struct {
	client *nursery.Client
	locker Locker

	mu    sync.Mutex
	token string
}

// New creates a Service. A nil locker uses a fresh MemoryLocker.
func New(client *nursery.Client, locker Locker) *Service {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Service{client: client, locker: locker}
}

// AdminToken logs in as admin on first use and caches the token.
func (s *Service) AdminToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, nil
	}
	token, err := s.client.LoginAs(ctx, config.RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("fixture login: %w", err)
	}
	s.token = token
	return token, nil
}

// forgetToken drops the cached token unless another caller already
// replaced it.
func (s *Service) forgetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.token = ""
	}
}

// withToken runs fn with the admin token. When the API rejects the token
// with 401 the cache is dropped and fn runs once more after a fresh login.
func (s *Service) withToken(ctx context.Context, fn func(token string) error) error {
	token, err := s.AdminToken(ctx)
	if err != nil {
		return err
	}
	err = fn(token)

	var statusErr *nursery.StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusUnauthorized {
		return err
	}
	log.Debug().Msg("fixture token rejected, logging in again")
	s.forgetToken(token)
	if token, err = s.AdminToken(ctx); err != nil {
		return err
	}
	return fn(token)
}

func categoryKey(name string) string {
	return "category:" + strings.ToLower(name)
}

func (s *Service) locked(ctx context.Context, key string, fn func(token string) error) error {
	unlock, err := s.locker.Lock(ctx, strings.ToLower(key))
	if err != nil {
		return err
	}
	defer unlock()
	return s.withToken(ctx, fn)
}

// EnsureCategory makes sure a category called name exists, creating it as a
// main category when absent.
func (s *Service) EnsureCategory(ctx context.Context, name string) (nursery.Category, error) {
	var cat nursery.Category
	err := s.locked(ctx, categoryKey(name), func(token string) error {
		found, ok, err := s.client.FindCategory(ctx, token, name)
		if err != nil {
			return err
		}
		if ok {
			cat = found
			return nil
		}
		cat, err = s.createCategory(ctx, token, name, 0)
		return err
	})
	return cat, err
}

// EnsureSubCategory makes sure name exists as a sub-category. A main category
// of that name is replaced by a sub-category under the main parent.
func (s *Service) EnsureSubCategory(ctx context.Context, name string) (nursery.Category, error) {
	var cat nursery.Category
	err := s.locked(ctx, categoryKey(name), func(token string) error {
		found, ok, err := s.client.FindCategory(ctx, token, name)
		if err != nil {
			return err
		}
		if ok && !found.IsMain() {
			cat = found
			return nil
		}
		if ok {
			log.Debug().Str("category", name).Msg("replacing main category with sub-category")
			if err := s.deleteCategory(ctx, token, found.ID); err != nil {
				return err
			}
		}

		parent, err := s.mainCategory(ctx, token, name)
		if err != nil {
			return err
		}
		cat, err = s.createCategory(ctx, token, name, parent.ID)
		return err
	})
	return cat, err
}

// mainCategory returns an existing main category other than exclude, or
// creates DefaultMainCategory. The lookup holds the lock of
// DefaultMainCategory so concurrent callers create it once. Callers may
// already hold the lock of exclude; the parent lock is always taken last.
func (s *Service) mainCategory(ctx context.Context, token, exclude string) (nursery.Category, error) {
	if !strings.EqualFold(exclude, DefaultMainCategory) {
		unlock, err := s.locker.Lock(ctx, categoryKey(DefaultMainCategory))
		if err != nil {
			return nursery.Category{}, err
		}
		defer unlock()
	}

	list, err := s.client.Categories(ctx, token)
	if err != nil {
		return nursery.Category{}, err
	}
	if main, ok := nursery.FindByName(list, DefaultMainCategory, func(c nursery.Category) string { return c.Name }); ok && main.IsMain() {
		return main, nil
	}
	for _, c := range list {
		if c.IsMain() && !strings.EqualFold(c.Name, exclude) {
			return c, nil
		}
	}
	return s.createCategory(ctx, token, DefaultMainCategory, 0)
}

// EnsureNoCategory deletes the category called name if it exists.
func (s *Service) EnsureNoCategory(ctx context.Context, name string) error {
	return s.locked(ctx, categoryKey(name), func(token string) error {
		found, ok, err := s.client.FindCategory(ctx, token, name)
		if err != nil || !ok {
			return err
		}
		return s.deleteCategory(ctx, token, found.ID)
	})
}

// PlantSpec describes a plant to ensure.
type PlantSpec struct {
	Name     string
	Category string
	Price    float64
	Quantity int
}

// EnsurePlant creates the plant in the named sub-category when absent. An
// unknown category falls back to the first sub-category.
func (s *Service) EnsurePlant(ctx context.Context, spec PlantSpec) (nursery.Plant, error) {
	var plant nursery.Plant
	err := s.locked(ctx, "plant:"+spec.Name, func(token string) error {
		found, ok, _, err := s.client.FindPlant(ctx, token, spec.Name)
		if err != nil {
			return err
		}
		if ok {
			plant = found
			return nil
		}

		subs, err := s.client.SubCategoryList(ctx, token)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			return fmt.Errorf("cannot create plant %q: no sub-categories exist", spec.Name)
		}
		cat, ok := nursery.FindByName(subs, spec.Category, func(c nursery.Category) string { return c.Name })
		if !ok {
			log.Debug().Str("category", spec.Category).Str("fallback", subs[0].Name).Msg("sub-category not found, using first")
			cat = subs[0]
		}

		resp, err := s.client.CreatePlant(ctx, token, cat.ID, nursery.PlantInput{
			Name: spec.Name, Price: spec.Price, Quantity: spec.Quantity,
		})
		if err != nil {
			return err
		}
		if err := resp.Expect(http.StatusOK, http.StatusCreated); err != nil {
			return fmt.Errorf("creating plant %q: %w", spec.Name, err)
		}
		return resp.JSON(&plant)
	})
	return plant, err
}

// DeletePlant deletes the plant called name.
func (s *Service) DeletePlant(ctx context.Context, name string) error {
	return s.locked(ctx, "plant:"+name, func(token string) error {
		found, ok, _, err := s.client.FindPlant(ctx, token, name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("plant %q: %w", name, ErrNotFound)
		}
		resp, err := s.client.DeletePlant(ctx, token, found.ID)
		if err != nil {
			return err
		}
		return resp.Expect(http.StatusOK, http.StatusNoContent)
	})
}

// FindPlant returns the plant called name. The error lists the plants that
// do exist.
func (s *Service) FindPlant(ctx context.Context, name string) (nursery.Plant, error) {
	var (
		found nursery.Plant
		ok    bool
		all   []nursery.Plant
	)
	err := s.withToken(ctx, func(token string) error {
		var err error
		found, ok, all, err = s.client.FindPlant(ctx, token, name)
		return err
	})
	if err != nil {
		return nursery.Plant{}, err
	}
	if !ok {
		names := make([]string, len(all))
		for i, p := range all {
			names[i] = p.Name
		}
		return nursery.Plant{}, fmt.Errorf("plant %q %w; available plants: %s", name, ErrNotFound, strings.Join(names, ", "))
	}
	return found, nil
}

// EnsureSale returns the first existing sale, or sells 5 of plantName.
func (s *Service) EnsureSale(ctx context.Context, plantName string) (nursery.Sale, error) {
	var sale nursery.Sale
	err := s.locked(ctx, "sales", func(token string) error {
		sales, err := s.client.Sales(ctx, token)
		if err != nil {
			return err
		}
		if len(sales) > 0 {
			sale = sales[0]
			return nil
		}
		plant, err := s.FindPlant(ctx, plantName)
		if err != nil {
			return err
		}
		sale, err = s.sell(ctx, token, plant.ID, 5)
		return err
	})
	return sale, err
}

// EnsureSalesCount tops the number of sales up to at least n by selling
// random quantities (1 to 5) of plantName concurrently.
func (s *Service) EnsureSalesCount(ctx context.Context, n int, plantName string) error {
	return s.locked(ctx, "sales", func(token string) error {
		sales, err := s.client.Sales(ctx, token)
		if err != nil {
			return err
		}
		missing := n - len(sales)
		if missing <= 0 {
			return nil
		}
		plant, err := s.FindPlant(ctx, plantName)
		if err != nil {
			return err
		}

		log.Debug().Int("existing", len(sales)).Int("creating", missing).Msg("creating sales")
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallel)
		for range missing {
			g.Go(func() error {
				_, err := s.sell(gctx, token, plant.ID, rand.IntN(5)+1)
				return err
			})
		}
		return g.Wait()
	})
}

// DeleteAllSales removes every sale concurrently.
func (s *Service) DeleteAllSales(ctx context.Context) error {
	return s.locked(ctx, "sales", func(token string) error {
		sales, err := s.client.Sales(ctx, token)
		if err != nil {
			return err
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallel)
		for _, sale := range sales {
			g.Go(func() error {
				resp, err := s.client.DeleteSale(gctx, token, sale.ID)
				if err != nil {
					return err
				}
				return resp.Expect(http.StatusOK, http.StatusNoContent, http.StatusNotFound)
			})
		}
		return g.Wait()
	})
}

func (s *Service) sell(ctx context.Context, token string, plantID int64, qty int) (nursery.Sale, error) {
	var sale nursery.Sale
	resp, err := s.client.SellPlant(ctx, token, plantID, qty)
	if err != nil {
		return sale, err
	}
	if err := resp.Expect(http.StatusOK, http.StatusCreated); err != nil {
		return sale, fmt.Errorf("selling plant %d: %w", plantID, err)
	}
	return sale, resp.JSON(&sale)
}

func (s *Service) createCategory(ctx context.Context, token, name string, parentID int64) (nursery.Category, error) {
	var cat nursery.Category
	resp, err := s.client.CreateCategory(ctx, token, name, parentID)
	if err != nil {
		return cat, err
	}
	if err := resp.Expect(http.StatusOK, http.StatusCreated); err != nil {
		return cat, fmt.Errorf("creating category %q: %w", name, err)
	}
	return cat, resp.JSON(&cat)
}

func (s *Service) deleteCategory(ctx context.Context, token string, id int64) error {
	resp, err := s.client.DeleteCategory(ctx, token, id)
	if err != nil {
		return err
	}
	if err := resp.Expect(http.StatusOK, http.StatusNoContent); err != nil {
		return fmt.Errorf("deleting category %d: %w", id, err)
	}
	return nil
}
