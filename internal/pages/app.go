package pages

import (
	"github.com/playwright-community/playwright-go"

	"github.com/greenhouse-qa/greenhouse/internal/config"
)

// App groups the page objects of one browser session.
type App struct {
	*Session
	Login        *LoginPage
	Dashboard    *DashboardPage
	Categories   *CategoriesPage
	CategoryForm *CategoryFormPage
	Plants       *PlantsPage
	Sales        *SalesPage
}

// NewApp builds every page object over a single session on page.
func NewApp(page playwright.Page, env *config.Env) *App {
	s := NewSession(page, env)
	return &App{
		Session:      s,
		Login:        &LoginPage{s},
		Dashboard:    &DashboardPage{s},
		Categories:   &CategoriesPage{s},
		CategoryForm: &CategoryFormPage{s},
		Plants:       &PlantsPage{s},
		Sales:        &SalesPage{s},
	}
}
