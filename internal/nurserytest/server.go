// Package nurserytest provides an in-memory nursery API for exercising the
// suite's own client, fixtures and steps without the real application.
package nurserytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/greenhouse-qa/greenhouse/internal/config"
	"github.com/greenhouse-qa/greenhouse/internal/nursery"
)

type account struct {
	password string
	role     string
}

// Server is a fake nursery API backed by maps.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	accounts   map[string]account
	tokens     map[string]string // token -> role
	categories map[int64]*nursery.Category
	plants     map[int64]*nursery.Plant
	sales      map[int64]*nursery.Sale
	nextID     int64
}

// New starts a server with the default admin and user accounts.
func New() *Server {
	s := &Server{
		accounts: map[string]account{
			"admin": {password: "admin123", role: config.RoleAdmin},
			"user":  {password: "user123", role: config.RoleUser},
		},
		tokens:     make(map[string]string),
		categories: make(map[int64]*nursery.Category),
		plants:     make(map[int64]*nursery.Plant),
		sales:      make(map[int64]*nursery.Sale),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// Env returns settings pointing at this server with default paths.
func (s *Server) Env() *config.Env {
	return &config.Env{
		APIBaseURL: s.URL,
		UIBaseURL:  s.URL,
		Endpoints: config.Endpoints{
			Login:      "/api/auth/login",
			Logout:     "/api/auth/logout",
			Categories: "/api/categories",
			Plants:     "/api/plants",
			Sales:      "/api/sales",
			Health:     "/api/health",
		},
		DefaultTimeout: 10 * time.Second,
		ExpectTimeout:  time.Second,
		Credentials: map[string]config.Credential{
			config.RoleAdmin: {Username: "admin", Password: "admin123"},
			config.RoleUser:  {Username: "user", Password: "user123"},
		},
	}
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/login", s.login).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)

	api.HandleFunc("/categories", s.listCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/sub-categories", s.subCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/page", s.pageCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/summary", s.categorySummary).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.adminOnly(s.createCategory)).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id:[0-9]+}", s.adminOnly(s.updateCategory)).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id:[0-9]+}", s.adminOnly(s.deleteCategory)).Methods(http.MethodDelete)

	api.HandleFunc("/plants", s.listPlants).Methods(http.MethodGet)
	api.HandleFunc("/plants/paged", s.pagePlants).Methods(http.MethodGet)
	api.HandleFunc("/plants/summary", s.plantSummary).Methods(http.MethodGet)
	api.HandleFunc("/plants/category/{id:[0-9]+}", s.adminOnly(s.createPlant)).Methods(http.MethodPost)
	api.HandleFunc("/plants/{id:[0-9]+}", s.adminOnly(s.updatePlant)).Methods(http.MethodPut)
	api.HandleFunc("/plants/{id:[0-9]+}", s.adminOnly(s.deletePlant)).Methods(http.MethodDelete)

	api.HandleFunc("/sales", s.adminOnly(s.listSales)).Methods(http.MethodGet)
	api.HandleFunc("/sales/page", s.adminOnly(s.pageSales)).Methods(http.MethodGet)
	api.HandleFunc("/sales/plant/{id:[0-9]+}", s.adminOnly(s.sellPlant)).Methods(http.MethodPost)
	api.HandleFunc("/sales/{id:[0-9]+}", s.adminOnly(s.deleteSale)).Methods(http.MethodDelete)
	return r
}

type roleKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		role, ok := s.tokens[token]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		r.Header.Set("X-Role", role)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Role") != config.RoleAdmin {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		h(w, r)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	acc, ok := s.accounts[body.Username]
	if !ok || acc.password != body.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = acc.role
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Categories

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.sortedCategories(func(nursery.Category) bool { return true }))
}

func (s *Server) subCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.sortedCategories(func(c nursery.Category) bool { return !c.IsMain() }))
}

func (s *Server) pageCategories(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(r.URL.Query().Get("search"))
	s.mu.Lock()
	items := s.sortedCategories(func(c nursery.Category) bool {
		return strings.Contains(strings.ToLower(c.Name), search)
	})
	s.mu.Unlock()
	writePage(w, r, items)
}

func (s *Server) categorySummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	main, sub := 0, 0
	for _, c := range s.categories {
		if c.IsMain() {
			main++
		} else {
			sub++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"mainCategories": main, "subCategories": sub})
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		ParentID *int64 `json:"parentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg := validateCategoryName(body.Name); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if s.categoryByName(body.Name) != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Category '%s' already exists", body.Name))
		return
	}
	cat := &nursery.Category{ID: s.id(), Name: body.Name, ParentName: nursery.MainParent}
	if body.ParentID != nil {
		parent, ok := s.categories[*body.ParentID]
		if !ok {
			writeError(w, http.StatusNotFound, "Parent category not found")
			return
		}
		pid := parent.ID
		cat.ParentID = &pid
		cat.ParentName = parent.Name
	}
	s.categories[cat.ID] = cat
	writeJSON(w, http.StatusCreated, cat)
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.categories[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}
	if msg := validateCategoryName(body.Name); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if other := s.categoryByName(body.Name); other != nil && other.ID != id {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Category '%s' already exists", body.Name))
		return
	}
	cat.Name = body.Name
	for _, c := range s.categories {
		if c.ParentID != nil && *c.ParentID == id {
			c.ParentName = body.Name
		}
	}
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}
	delete(s.categories, id)
	for cid, c := range s.categories {
		if c.ParentID != nil && *c.ParentID == id {
			delete(s.categories, cid)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func validateCategoryName(name string) string {
	switch n := len(strings.TrimSpace(name)); {
	case n == 0:
		return "Category name is required"
	case n < 3 || n > 10:
		return "Category name must be between 3 and 10 characters"
	}
	return ""
}

// Plants

func (s *Server) listPlants(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.sortedPlants(""))
}

func (s *Server) pagePlants(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := s.sortedPlants(strings.ToLower(r.URL.Query().Get("search")))
	s.mu.Unlock()
	writePage(w, r, items)
}

func (s *Server) plantSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	low := 0
	for _, p := range s.plants {
		if p.Quantity < 5 {
			low++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"totalPlants": len(s.plants), "lowStockPlants": low})
}

func (s *Server) createPlant(w http.ResponseWriter, r *http.Request) {
	var in nursery.PlantInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.categories[pathID(r)]
	if !ok {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}
	if cat.IsMain() {
		writeError(w, http.StatusBadRequest, "Plants can only be added to sub-categories")
		return
	}
	if msg := validatePlant(in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	for _, p := range s.plants {
		if strings.EqualFold(p.Name, in.Name) && p.CategoryID == cat.ID {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Plant '%s' already exists in this category", in.Name))
			return
		}
	}
	p := &nursery.Plant{
		ID: s.id(), Name: in.Name, Price: in.Price, Quantity: in.Quantity,
		CategoryID: cat.ID, Category: &nursery.CategoryRef{ID: cat.ID, Name: cat.Name},
	}
	s.plants[p.ID] = p
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) updatePlant(w http.ResponseWriter, r *http.Request) {
	var in nursery.PlantInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plants[pathID(r)]
	if !ok {
		writeError(w, http.StatusNotFound, "Plant not found")
		return
	}
	if msg := validatePlant(in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if in.CategoryID != 0 {
		cat, ok := s.categories[in.CategoryID]
		if !ok {
			writeError(w, http.StatusNotFound, "Category not found")
			return
		}
		p.CategoryID = cat.ID
		p.Category = &nursery.CategoryRef{ID: cat.ID, Name: cat.Name}
	}
	p.Name, p.Price, p.Quantity = in.Name, in.Price, in.Quantity
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePlant(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plants[id]; !ok {
		writeError(w, http.StatusNotFound, "Plant not found")
		return
	}
	delete(s.plants, id)
	w.WriteHeader(http.StatusOK)
}

func validatePlant(in nursery.PlantInput) string {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return "Plant name is required"
	case in.Price <= 0:
		return "Price must be greater than 0"
	case in.Quantity < 0:
		return "Quantity cannot be negative"
	}
	return ""
}

// Sales

func (s *Server) listSales(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.sortedSales())
}

func (s *Server) pageSales(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := s.sortedSales()
	s.mu.Unlock()
	writePage(w, r, items)
}

func (s *Server) sellPlant(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || qty <= 0 {
		writeError(w, http.StatusBadRequest, "Quantity must be greater than 0")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plants[pathID(r)]
	if !ok {
		writeError(w, http.StatusNotFound, "Plant not found")
		return
	}
	if p.Quantity < qty {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s has only %d items available in stock", p.Name, p.Quantity))
		return
	}
	p.Quantity -= qty
	sale := &nursery.Sale{
		ID:         s.id(),
		Plant:      nursery.SalePlant{ID: p.ID, Name: p.Name, Price: p.Price, Quantity: p.Quantity},
		Quantity:   qty,
		TotalPrice: p.Price * float64(qty),
		SoldAt:     time.Now().UTC().Format(time.RFC3339),
	}
	s.sales[sale.ID] = sale
	writeJSON(w, http.StatusCreated, sale)
}

func (s *Server) deleteSale(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sales[id]; !ok {
		writeError(w, http.StatusNotFound, "Sale not found")
		return
	}
	delete(s.sales, id)
	w.WriteHeader(http.StatusOK)
}

// helpers; callers hold s.mu

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) categoryByName(name string) *nursery.Category {
	for _, c := range s.categories {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

func (s *Server) sortedCategories(keep func(nursery.Category) bool) []nursery.Category {
	out := []nursery.Category{}
	for _, c := range s.categories {
		if keep(*c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) sortedPlants(search string) []nursery.Plant {
	out := []nursery.Plant{}
	for _, p := range s.plants {
		if strings.Contains(strings.ToLower(p.Name), search) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) sortedSales() []nursery.Sale {
	out := []nursery.Sale{}
	for _, sale := range s.sales {
		out = append(out, *sale)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size <= 0 {
		size = 10
	}
	if page < 0 {
		page = 0
	}
	start := min(page*size, len(items))
	end := min(start+size, len(items))
	content := items[start:end]
	writeJSON(w, http.StatusOK, nursery.Page[T]{
		Content:       content,
		TotalPages:    (len(items) + size - 1) / size,
		TotalElements: len(items),
		Size:          size,
		Number:        page,
		Empty:         len(content) == 0,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, nursery.APIError{Status: status, Error: msg, Message: msg})
}
