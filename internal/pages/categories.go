package pages

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	categoriesTitle  = `h3:has-text("Categories")`
	categorySearch   = `input[placeholder="Search sub category"]`
	categoryParent   = `select[name="parentId"]`
	searchButton     = `button:has-text("Search")`
	resetLink        = `a:has-text("Reset")`
	addCategoryLink  = `a:has-text("Add A Category")`
	listTable        = ".table"
	editAction       = `a[title="Edit"]`
	deleteAction     = `button[title="Delete"]`
	formName         = `input[name="name"]`
	formParent       = `#parentId`
	formSave         = `button:has-text("Save")`
	formCancel       = `a:has-text("Cancel")`
	validationBanner = ".alert-danger, .toast-danger"
)

var (
	categoryListURL = regexp.MustCompile(`/ui/categories`)
	categoryAddURL  = regexp.MustCompile(`/ui/categories/add`)
	categoryEditURL = regexp.MustCompile(`/ui/categories/edit/\d+`)
)

// CategoriesPage is the category list with search and row actions.
type CategoriesPage struct {
	*Session
}

// Open navigates to the list and waits for the table.
func (p *CategoriesPage) Open() error {
	if err := p.Navigate(p.Env.Routes.Categories); err != nil {
		return err
	}
	return p.ExpectListVisible()
}

func (p *CategoriesPage) ExpectListVisible() error {
	return p.ExpectVisible(p.Locator(listTable).First(), "categories table")
}

func (p *CategoriesPage) ExpectTitle() error {
	return p.ExpectVisible(p.Locator(categoriesTitle), "categories heading")
}

func (p *CategoriesPage) Search(term string) error {
	if err := p.Fill(categorySearch, term); err != nil {
		return err
	}
	return p.Click(searchButton)
}

func (p *CategoriesPage) Reset() error {
	return p.Click(resetLink)
}

func (p *CategoriesPage) FilterByParent(label string) error {
	return p.SelectLabel(categoryParent, label)
}

// ClickAdd opens the add form from the list.
func (p *CategoriesPage) ClickAdd() error {
	ok, err := p.Probe(addCategoryLink)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%q button is not visible", "Add A Category")
	}
	if err := p.Click(addCategoryLink); err != nil {
		return err
	}
	return p.ExpectURL(categoryAddURL)
}

// HasRow reports whether a row containing name is currently listed.
func (p *CategoriesPage) HasRow(name string) (bool, error) {
	n, err := p.Rows(name).Count()
	if err != nil {
		return false, fmt.Errorf("counting rows for %q: %w", name, err)
	}
	return n > 0, nil
}

func (p *CategoriesPage) ExpectCategoryVisible(name string) error {
	return p.ExpectVisible(p.Rows(name).First(), fmt.Sprintf("category %q", name))
}

func (p *CategoriesPage) ExpectCategoryNotVisible(name string) error {
	return p.ExpectHidden(p.Rows(name), fmt.Sprintf("category %q", name))
}

// Add creates a category through the add form and waits for the list.
func (p *CategoriesPage) Add(name string) error {
	if err := p.ClickAdd(); err != nil {
		return err
	}
	form := &CategoryFormPage{Session: p.Session}
	if err := form.FillName(name); err != nil {
		return err
	}
	if err := form.Save(); err != nil {
		return err
	}
	return p.ExpectURL(categoryListURL)
}

// ClickEdit opens the edit form of the row named name.
func (p *CategoriesPage) ClickEdit(name string) error {
	ok, err := p.HasRow(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no category row named %q", name)
	}
	if err := p.Rows(name).Locator(editAction).First().Click(); err != nil {
		return fmt.Errorf("clicking edit for %q: %w", name, err)
	}
	return nil
}

// Edit renames a listed category.
func (p *CategoriesPage) Edit(name, newName string) error {
	if err := p.ClickEdit(name); err != nil {
		return err
	}
	form := &CategoryFormPage{Session: p.Session}
	if err := form.FillName(newName); err != nil {
		return err
	}
	if err := form.Save(); err != nil {
		return err
	}
	return p.ExpectURL(categoryListURL)
}

// Delete removes a listed category, accepting the confirmation dialog.
func (p *CategoriesPage) Delete(name string) error {
	ok, err := p.HasRow(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no category row named %q", name)
	}
	p.AcceptNextDialog()
	if err := p.Rows(name).Locator(deleteAction).First().Click(); err != nil {
		return fmt.Errorf("clicking delete for %q: %w", name, err)
	}
	return p.WaitIdle()
}

func (p *CategoriesPage) ExpectOnList() error {
	return p.ExpectURL(categoryListURL)
}

// ExpectOnlyMatching checks every listed row contains term, ignoring case.
func (p *CategoriesPage) ExpectOnlyMatching(term string) error {
	return expectRowsContain(p.Session, term)
}

// ExpectRowActionsDisabled checks every edit or delete control carries the
// disabled attribute. kind is "edit" or "delete".
func (p *CategoriesPage) ExpectRowActionsDisabled(kind string) error {
	sel := editAction
	if strings.EqualFold(kind, "delete") {
		sel = deleteAction
	}
	buttons := p.Locator(sel)
	n, err := buttons.Count()
	if err != nil {
		return fmt.Errorf("counting %s buttons: %w", kind, err)
	}
	for i := range n {
		disabled, err := buttons.Nth(i).Evaluate(`el => el.hasAttribute("disabled")`, nil)
		if err != nil {
			return fmt.Errorf("reading %s button %d: %w", kind, i, err)
		}
		if d, _ := disabled.(bool); !d {
			return fmt.Errorf("%s button %d is enabled", kind, i)
		}
	}
	return nil
}

// ProbeValidationError reports an error banner or a form that stayed on
// the add page.
func (p *CategoriesPage) ProbeValidationError() (bool, error) {
	ok, err := p.Probe(validationBanner)
	if err != nil || ok {
		return ok, err
	}
	return strings.Contains(p.URL(), "/add"), nil
}

// CategoryFormPage is the add or edit form.
type CategoryFormPage struct {
	*Session
}

func (p *CategoryFormPage) OpenAdd() error {
	return p.Navigate(p.Env.Routes.Categories + "/add")
}

func (p *CategoryFormPage) OpenEdit(id int64) error {
	return p.Navigate(fmt.Sprintf("%s/edit/%d", p.Env.Routes.Categories, id))
}

func (p *CategoryFormPage) FillName(name string) error {
	return p.Fill(formName, name)
}

func (p *CategoryFormPage) SelectParent(label string) error {
	return p.SelectLabel(formParent, label)
}

func (p *CategoryFormPage) Save() error {
	return p.Click(formSave)
}

func (p *CategoryFormPage) Cancel() error {
	return p.Click(formCancel)
}

func (p *CategoryFormPage) NameValue() (string, error) {
	v, err := p.Locator(formName).First().InputValue()
	if err != nil {
		return "", fmt.Errorf("reading category name: %w", err)
	}
	return v, nil
}

// ExpectTitle checks the form is the "Add" or "Edit" variant by its URL.
func (p *CategoryFormPage) ExpectTitle(kind string) error {
	switch kind {
	case "Add":
		return p.ExpectURL(categoryAddURL)
	case "Edit":
		return p.ExpectURL(categoryEditURL)
	}
	return fmt.Errorf("unknown category page %q (expected Add or Edit)", kind)
}

func expectRowsContain(s *Session, term string) error {
	texts, err := s.Locator("tbody tr").AllInnerTexts()
	if err != nil {
		return fmt.Errorf("reading rows: %w", err)
	}
	for i, text := range texts {
		if !containsFold(text, term) {
			return fmt.Errorf("row %d %q does not match %q", i, strings.TrimSpace(text), term)
		}
	}
	return nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToUpper(s), strings.ToUpper(sub))
}
