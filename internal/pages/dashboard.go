package pages

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// DashboardPage is the landing page after login.
type DashboardPage struct {
	*Session
}

const (
	dashboardCard  = ".dashboard-card"
	dashboardTitle = "text=QA Training Application"
	sidebar        = ".sidebar"
)

// DashboardCards are the four cards the dashboard shows.
var DashboardCards = []string{"Categories", "Plants", "Sales", "Inventory"}

var navLinks = map[string]string{
	"Manage Categories": `a:has-text("Manage Categories")`,
	"Manage Plants":     `a:has-text("Manage Plants")`,
	"View Sales":        `a:has-text("View Sales")`,
	"Open Inventory":    `a:has-text("Open Inventory")`,
}

var subCountPattern = regexp.MustCompile(`(?i)Sub[:\s]*(\d+)`)
var numberPattern = regexp.MustCompile(`\d+`)

func (p *DashboardPage) Open() error {
	return p.Navigate(p.Env.Routes.Dashboard)
}

func (p *DashboardPage) IsVisible() (bool, error) {
	return p.Probe(dashboardTitle)
}

// ExpectCards checks there are exactly len(names) cards with those headings.
func (p *DashboardPage) ExpectCards(names ...string) error {
	if len(names) == 0 {
		names = DashboardCards
	}
	if err := p.ExpectCount(p.Locator(dashboardCard), len(names), "dashboard cards"); err != nil {
		return err
	}
	for _, name := range names {
		if err := p.ExpectVisible(p.cardHeading(name), fmt.Sprintf("%q card", name)); err != nil {
			return err
		}
	}
	return nil
}

func (p *DashboardPage) ProbeCard(name string) (bool, error) {
	return p.ProbeLocator(p.cardHeading(name))
}

func (p *DashboardPage) ExpectSidebar() error {
	return p.ExpectVisible(p.Locator(sidebar), "sidebar navigation")
}

// ClickNav follows one of the dashboard's navigation buttons.
func (p *DashboardPage) ClickNav(name string) error {
	sel, ok := navLinks[name]
	if !ok {
		return p.ClickButton(name)
	}
	return p.Click(sel)
}

// OpenInventory follows the href of the inventory button, which is rendered
// disabled.
func (p *DashboardPage) OpenInventory() error {
	href, err := p.Locator(navLinks["Open Inventory"]).First().GetAttribute("href")
	if err != nil {
		return fmt.Errorf("reading inventory link: %w", err)
	}
	if href == "" {
		return fmt.Errorf("inventory link has no href")
	}
	return p.Navigate(href)
}

func (p *DashboardPage) ClickSidebarLink(text string) error {
	return p.Click(fmt.Sprintf(`.sidebar a:has-text(%q)`, text))
}

// ClickAppTitle returns to the dashboard through the header, trying the
// navbar brand, a header heading and finally the title text.
func (p *DashboardPage) ClickAppTitle() error {
	for _, sel := range []string{".navbar-brand", "header h1", dashboardTitle} {
		ok, err := p.Probe(sel)
		if err != nil {
			return err
		}
		if ok {
			if err := p.Click(sel); err != nil {
				return err
			}
			return p.WaitIdle()
		}
	}
	return fmt.Errorf("no application title found in the header")
}

func (p *DashboardPage) CategoryCount() (int, error) {
	return p.cardCount("Categories", false)
}

func (p *DashboardPage) PlantCount() (int, error) {
	return p.cardCount("Plants", false)
}

func (p *DashboardPage) SalesCount() (int, error) {
	return p.cardCount("Sales", true)
}

// SubCategoryCount reads the sub-category figure from the Categories card.
func (p *DashboardPage) SubCategoryCount() (int, error) {
	text, err := p.card("Categories").First().TextContent()
	if err != nil {
		return 0, fmt.Errorf("reading categories card: %w", err)
	}
	n, ok := subCount(text)
	if !ok {
		return 0, fmt.Errorf("no sub-category count in %q", strings.TrimSpace(text))
	}
	return n, nil
}

func (p *DashboardPage) ProbeLowStock() (bool, error) {
	return p.ProbeLocator(p.card("Plants").Locator("text=Low Stock").First())
}

func (p *DashboardPage) ProbeRevenue() (bool, error) {
	return p.ProbeLocator(p.card("Sales").Locator("text=/Rs|Revenue/").First())
}

// Revenue returns the revenue line of the Sales card.
func (p *DashboardPage) Revenue() (string, error) {
	ok, err := p.ProbeRevenue()
	if err != nil {
		return "", err
	}
	l := p.card("Sales").First()
	if ok {
		l = p.card("Sales").Locator("text=/Rs|Revenue/").First()
	}
	text, err := l.TextContent()
	if err != nil {
		return "", fmt.Errorf("reading revenue: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (p *DashboardPage) card(name string) playwright.Locator {
	return p.Locator(fmt.Sprintf(`.dashboard-card:has-text(%q)`, name))
}

func (p *DashboardPage) cardHeading(name string) playwright.Locator {
	return p.Locator(fmt.Sprintf(`.dashboard-card h6:has-text(%q)`, name))
}

func (p *DashboardPage) cardCount(name string, last bool) (int, error) {
	l := p.card(name).Locator(".fw-bold.fs-5")
	if last {
		l = l.Last()
	} else {
		l = l.First()
	}
	text, err := l.TextContent()
	if err != nil {
		return 0, fmt.Errorf("reading %s count: %w", name, err)
	}
	return parseCount(text)
}

func parseCount(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("count %q is not a number", text)
	}
	return n, nil
}

// subCount finds "Sub: N", falling back to the second number in the text.
func subCount(text string) (int, bool) {
	if m := subCountPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, true
	}
	if nums := numberPattern.FindAllString(text, -1); len(nums) > 1 {
		n, _ := strconv.Atoi(nums[1])
		return n, true
	}
	return 0, false
}
