package pages

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	plantsTitle    = `h3:has-text("Plants")`
	plantSearch    = `input[placeholder="Search plant"]`
	plantCategory  = `select[name="categoryId"]`
	addPlantLink   = `a:has-text("Add a Plant")`
	plantFormName  = `#name, input[name="name"]`
	plantFormCat   = `#categoryId, select[name="categoryId"]`
	plantFormPrice = `#price, input[name="price"]`
	plantFormQty   = `#quantity, input[name="quantity"]`
	fieldError     = ".text-danger, .invalid-feedback, .alert-danger"
)

var plantListURL = regexp.MustCompile(`/ui/plants/?(\?.*)?$`)

// PlantForm is the content of the add or edit plant form. Empty fields are
// left untouched, which lets a step submit an incomplete form.
type PlantForm struct {
	Name     string
	Category string
	Price    string
	Quantity string
}

// PlantsPage is the plant list and its add/edit forms.
type PlantsPage struct {
	*Session
}

func (p *PlantsPage) Open() error {
	if err := p.Navigate(p.Env.Routes.Plants); err != nil {
		return err
	}
	return p.ExpectListVisible()
}

func (p *PlantsPage) ExpectListVisible() error {
	return p.ExpectVisible(p.Locator(listTable).First(), "plants table")
}

func (p *PlantsPage) ExpectTitle() error {
	return p.ExpectVisible(p.Locator(plantsTitle), "plants heading")
}

func (p *PlantsPage) Search(term string) error {
	if err := p.Fill(plantSearch, term); err != nil {
		return err
	}
	if err := p.Click(searchButton); err != nil {
		return err
	}
	return p.WaitIdle()
}

func (p *PlantsPage) Reset() error {
	return p.Click(resetLink)
}

func (p *PlantsPage) FilterByCategory(label string) error {
	return p.SelectLabel(plantCategory, label)
}

// Add submits the add form. It does not wait for the list, so validation
// failures can be asserted afterwards.
func (p *PlantsPage) Add(form PlantForm) error {
	if err := p.Navigate(p.Env.Routes.Plants + "/add"); err != nil {
		return err
	}
	return p.submit(form)
}

// Edit opens the row named name and submits form.
func (p *PlantsPage) Edit(name string, form PlantForm) error {
	rows := p.Rows(name)
	n, err := rows.Count()
	if err != nil {
		return fmt.Errorf("counting rows for %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("no plant row named %q", name)
	}
	if err := rows.Locator(editAction).First().Click(); err != nil {
		return fmt.Errorf("clicking edit for %q: %w", name, err)
	}
	return p.submit(form)
}

// Delete removes the first row named name, accepting the confirmation.
func (p *PlantsPage) Delete(name string) error {
	rows := p.Rows(name)
	n, err := rows.Count()
	if err != nil {
		return fmt.Errorf("counting rows for %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("no plant row named %q", name)
	}
	p.AcceptNextDialog()
	if err := rows.Locator(deleteAction).First().Click(); err != nil {
		return fmt.Errorf("clicking delete for %q: %w", name, err)
	}
	return p.WaitIdle()
}

func (p *PlantsPage) submit(form PlantForm) error {
	fields := []struct{ sel, value string }{
		{plantFormName, form.Name},
		{plantFormPrice, form.Price},
		{plantFormQty, form.Quantity},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := p.Fill(f.sel, f.value); err != nil {
			return err
		}
	}
	if form.Category != "" {
		if err := p.SelectLabel(plantFormCat, form.Category); err != nil {
			return err
		}
	}
	if err := p.Click(formSave); err != nil {
		return err
	}
	return p.WaitIdle()
}

// HasPlant reports whether a row with name (and every extra text) is listed.
func (p *PlantsPage) HasPlant(name string, also ...string) (bool, error) {
	n, err := p.CountRows(name, also...)
	return n > 0, err
}

// CountRows counts rows containing name and every extra text.
func (p *PlantsPage) CountRows(name string, also ...string) (int, error) {
	n, err := p.Rows(append([]string{name}, also...)...).Count()
	if err != nil {
		return 0, fmt.Errorf("counting rows for %q: %w", name, err)
	}
	return n, nil
}

func (p *PlantsPage) ExpectPlantVisible(name string) error {
	return p.ExpectVisible(p.Rows(name).First(), fmt.Sprintf("plant %q", name))
}

func (p *PlantsPage) ExpectPlantNotVisible(name string) error {
	return p.ExpectHidden(p.Rows(name), fmt.Sprintf("plant %q", name))
}

// ExpectRowCount fails unless exactly n rows contain name and category.
func (p *PlantsPage) ExpectRowCount(name, category string, n int) error {
	return p.ExpectCount(p.Rows(name, category), n, fmt.Sprintf("plants named %q in %q", name, category))
}

func (p *PlantsPage) ExpectOnlyMatching(term string) error {
	return expectRowsContain(p.Session, term)
}

func (p *PlantsPage) ExpectValidationError() error {
	return p.ExpectVisible(p.Locator(fieldError).First(), "plant validation error")
}

// ExpectOptionHiddenOrDisabled checks a user cannot reach an admin control:
// "Add a Plant", "Edit" or "Delete".
func (p *PlantsPage) ExpectOptionHiddenOrDisabled(option string) error {
	var sel string
	switch strings.ToLower(option) {
	case "add a plant", "add plant":
		sel = addPlantLink
	case "edit":
		sel = editAction
	case "delete":
		sel = deleteAction
	default:
		return fmt.Errorf("unknown plant option %q (expected Add a Plant, Edit or Delete)", option)
	}

	controls := p.Locator(sel)
	n, err := controls.Count()
	if err != nil {
		return fmt.Errorf("counting %q controls: %w", option, err)
	}
	for i := range n {
		c := controls.Nth(i)
		visible, err := c.IsVisible()
		if err != nil {
			return fmt.Errorf("checking %q control %d: %w", option, i, err)
		}
		if !visible {
			continue
		}
		disabled, err := c.Evaluate(`el => el.hasAttribute("disabled") || el.classList.contains("disabled")`, nil)
		if err != nil {
			return fmt.Errorf("checking %q control %d: %w", option, i, err)
		}
		if d, _ := disabled.(bool); !d {
			return fmt.Errorf("%q control %d is visible and enabled", option, i)
		}
	}
	return nil
}

// OnList reports whether the page is the plant list rather than a form.
func (p *PlantsPage) OnList() bool {
	return plantListURL.MatchString(p.URL())
}
