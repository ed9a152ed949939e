package nursery

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MainParent is the parentName the API reports for top-level categories.
const MainParent = "-"

// Category is a main category or a sub-category.
type Category struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ParentID   *int64 `json:"parentId,omitempty"`
	ParentName string `json:"parentName,omitempty"`
}

// IsMain reports whether c has no parent.
func (c Category) IsMain() bool {
	return c.ParentName == "" || c.ParentName == MainParent
}

// CategoryRef is the embedded category of a plant.
type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Plant is an item of stock within a sub-category.
type Plant struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Price      float64      `json:"price"`
	Quantity   int          `json:"quantity"`
	CategoryID int64        `json:"categoryId,omitempty"`
	Category   *CategoryRef `json:"category,omitempty"`
}

// PlantInput is the body for creating or updating a plant.
type PlantInput struct {
	Name       string  `json:"name"`
	CategoryID int64   `json:"categoryId,omitempty"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
}

// SalePlant is the plant snapshot embedded in a sale.
type SalePlant struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Sale records a quantity of one plant sold.
type Sale struct {
	ID         int64     `json:"id"`
	Plant      SalePlant `json:"plant"`
	Quantity   int       `json:"quantity"`
	TotalPrice float64   `json:"totalPrice"`
	SoldAt     string    `json:"soldAt"`
}

// Validate checks the invariants of a freshly created sale.
func (s Sale) Validate() error {
	switch {
	case s.ID == 0:
		return fmt.Errorf("sale has no id")
	case s.Plant.ID == 0:
		return fmt.Errorf("sale %d has no plant", s.ID)
	case s.Quantity <= 0:
		return fmt.Errorf("sale %d has quantity %d", s.ID, s.Quantity)
	case s.TotalPrice <= 0:
		return fmt.Errorf("sale %d has total price %v", s.ID, s.TotalPrice)
	case s.SoldAt == "":
		return fmt.Errorf("sale %d has no soldAt", s.ID)
	}
	if want := s.Plant.Price * float64(s.Quantity); !almostEqual(want, s.TotalPrice) {
		return fmt.Errorf("sale %d total price %v, expected %v (%v x %d)", s.ID, s.TotalPrice, want, s.Plant.Price, s.Quantity)
	}
	return nil
}

// Page is the envelope returned by the paged list endpoints.
type Page[T any] struct {
	Content       []T  `json:"content"`
	TotalPages    int  `json:"totalPages"`
	TotalElements int  `json:"totalElements"`
	Size          int  `json:"size"`
	Number        int  `json:"number"`
	Empty         bool `json:"empty"`
}

// Consistent checks that the envelope agrees with itself.
func (p Page[T]) Consistent() error {
	if p.Size <= 0 {
		return fmt.Errorf("page size %d", p.Size)
	}
	if len(p.Content) > p.Size {
		return fmt.Errorf("page holds %d items, more than size %d", len(p.Content), p.Size)
	}
	if want := (p.TotalElements + p.Size - 1) / p.Size; p.TotalPages != want {
		return fmt.Errorf("totalPages %d, expected ceil(%d/%d) = %d", p.TotalPages, p.TotalElements, p.Size, want)
	}
	if p.Empty != (len(p.Content) == 0) {
		return fmt.Errorf("empty=%t with %d items", p.Empty, len(p.Content))
	}
	return nil
}

// APIError is the error body returned on 4xx responses.
type APIError struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DecodeList decodes a list response that is either a bare array or a
// {"data": [...]} envelope.
func DecodeList[T any](r *Response) ([]T, error) {
	var items []T
	if json.Unmarshal(r.Body, &items) == nil {
		return items, nil
	}
	var env struct {
		Data    []T `json:"data"`
		Content []T `json:"content"`
	}
	if err := r.JSON(&env); err != nil {
		return nil, err
	}
	if env.Data != nil {
		return env.Data, nil
	}
	return env.Content, nil
}

// DecodePage decodes a paged envelope.
func DecodePage[T any](r *Response) (Page[T], error) {
	var p Page[T]
	if err := r.JSON(&p); err != nil {
		return p, err
	}
	return p, nil
}

// DecodeError decodes an error body.
func DecodeError(r *Response) (APIError, error) {
	var e APIError
	if err := r.JSON(&e); err != nil {
		return e, err
	}
	return e, nil
}

// FindByName returns the first item whose name matches case-insensitively.
func FindByName[T any](items []T, name string, nameOf func(T) string) (T, bool) {
	for _, it := range items {
		if strings.EqualFold(nameOf(it), name) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func categoryName(c Category) string { return c.Name }
func plantName(p Plant) string       { return p.Name }

func almostEqual(a, b float64) bool {
	d := a - b
	return d < 0.005 && d > -0.005
}
