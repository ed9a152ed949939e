package pages

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
)

const (
	salesTitle       = `h3:has-text("Sales")`
	sellPlantTitle   = `h3:has-text("Sell Plant")`
	sellPlantButton  = `a:has-text("Sell Plant"), button:has-text("Sell Plant")`
	salesRows        = ".table tbody tr"
	saleDeleteButton = `button:has([class*="trash"])`
	saleDeleteForms  = `form[action*="/ui/sales/delete"] button`
	pagination       = ".pagination"
	nextPageLink     = `.pagination a:has-text("Next")`
	prevPageLink     = `.pagination a:has-text("Previous")`
	plantDropdown    = `#plantId, select[name="plantId"]`
	quantityInput    = `#quantity, input[name="quantity"]`
	sellButton       = `button:has-text("Sell")`
	cancelButton     = `a:has-text("Cancel"), button:has-text("Cancel")`
	placeholderPlant = "-- Select Plant --"
)

// SalesPage is the sales list and the sell form.
type SalesPage struct {
	*Session
}

func (p *SalesPage) Open() error {
	if err := p.Navigate(p.Env.Routes.Sales); err != nil {
		return err
	}
	return p.WaitIdle()
}

func (p *SalesPage) OpenSellForm() error {
	return p.Navigate(p.Env.Routes.Sales + "/new")
}

func (p *SalesPage) ClickSellPlant() error {
	return p.Click(sellPlantButton)
}

func (p *SalesPage) ProbeSellButton() (bool, error) {
	return p.Probe(sellPlantButton)
}

func (p *SalesPage) ExpectTitle() error {
	return p.ExpectVisible(p.Locator(salesTitle), "sales heading")
}

func (p *SalesPage) ExpectSellPageVisible() error {
	return p.ExpectVisible(p.Locator(sellPlantTitle), "sell plant heading")
}

func (p *SalesPage) ExpectTableVisible() error {
	return p.ExpectVisible(p.Locator(listTable).First(), "sales table")
}

// SelectPlant picks the first dropdown option whose label contains name,
// ignoring case.
func (p *SalesPage) SelectPlant(name string) error {
	labels, err := p.Locator(plantDropdown).First().Locator("option").AllTextContents()
	if err != nil {
		return fmt.Errorf("reading plant options: %w", err)
	}
	label, ok := matchOption(labels, name)
	if !ok {
		return fmt.Errorf("plant %q not found in dropdown", name)
	}
	return p.SelectLabel(plantDropdown, label)
}

func (p *SalesPage) EnterQuantity(qty string) error {
	return p.Fill(quantityInput, qty)
}

func (p *SalesPage) ClickSell() error {
	if err := p.Click(sellButton); err != nil {
		return err
	}
	return p.WaitIdle()
}

func (p *SalesPage) Cancel() error {
	return p.Click(cancelButton)
}

// Count returns the number of sale rows on the current page.
func (p *SalesPage) Count() (int, error) {
	n, err := p.Locator(salesRows).Count()
	if err != nil {
		return 0, fmt.Errorf("counting sales: %w", err)
	}
	return n, nil
}

// DeleteRow deletes the i-th listed sale, accepting the confirmation.
func (p *SalesPage) DeleteRow(i int) error {
	p.AcceptNextDialog()
	if err := p.Locator(salesRows).Nth(i).Locator(saleDeleteButton).Click(); err != nil {
		return fmt.Errorf("deleting sale row %d: %w", i, err)
	}
	return p.WaitIdle()
}

// DeleteButtonCount counts the delete forms rendered in the list.
func (p *SalesPage) DeleteButtonCount() (int, error) {
	n, err := p.Locator(saleDeleteForms).Count()
	if err != nil {
		return 0, fmt.Errorf("counting delete buttons: %w", err)
	}
	return n, nil
}

// NextPage follows the "Next" link and reports whether the URL changed.
func (p *SalesPage) NextPage() (bool, error) {
	return p.followPageLink(nextPageLink)
}

// PreviousPage follows the "Previous" link and reports whether the URL changed.
func (p *SalesPage) PreviousPage() (bool, error) {
	return p.followPageLink(prevPageLink)
}

func (p *SalesPage) followPageLink(sel string) (bool, error) {
	before := p.URL()
	ok, err := p.Probe(sel)
	if err != nil || !ok {
		return false, err
	}
	if err := p.Click(sel); err != nil {
		return false, err
	}
	if err := p.WaitIdle(); err != nil {
		return false, err
	}
	return p.URL() != before, nil
}

func (p *SalesPage) ProbePagination() (bool, error) {
	return p.Probe(pagination)
}

func (p *SalesPage) ExpectPaginationHidden() error {
	return p.ExpectHidden(p.Locator(pagination), "pagination")
}

func (p *SalesPage) ExpectValidationError() error {
	return p.ExpectVisible(p.Locator(fieldError).First(), "sale validation error")
}

// ProbeValidationAlert reports a validation message that the form may
// render as an alert box or inline text.
func (p *SalesPage) ProbeValidationAlert() (bool, error) {
	return p.ProbeLocator(p.Locator(fieldError).First())
}

// PlantOptions lists the selectable plant labels, without the placeholder.
func (p *SalesPage) PlantOptions() ([]string, error) {
	labels, err := p.Locator(plantDropdown).First().Locator("option").AllTextContents()
	if err != nil {
		return nil, fmt.Errorf("reading plant options: %w", err)
	}
	return filterOptions(labels), nil
}

// OnList reports whether the page is the sales list and not the sell form.
func (p *SalesPage) OnList() bool {
	u := p.URL()
	return strings.Contains(u, p.Env.Routes.Sales) && !strings.Contains(u, p.Env.Routes.Sales+"/new")
}

// SaleRows exposes the sale rows for custom checks.
func (p *SalesPage) SaleRows() playwright.Locator {
	return p.Locator(salesRows)
}

func matchOption(labels []string, name string) (string, bool) {
	for _, l := range labels {
		if strings.Contains(strings.ToLower(l), strings.ToLower(name)) {
			return l, true
		}
	}
	return "", false
}

func filterOptions(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if t := strings.TrimSpace(l); t != "" && t != placeholderPlant {
			out = append(out, l)
		}
	}
	return out
}

// HasOptionPrefix reports whether any option starts with name, ignoring case.
func HasOptionPrefix(options []string, name string) bool {
	for _, o := range options {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(o)), strings.ToUpper(name)) {
			return true
		}
	}
	return false
}
