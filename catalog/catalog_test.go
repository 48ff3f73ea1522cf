package catalog

import (
	"context"
	"testing"

	"github.com/rushteam/nextcart/core"
	"github.com/rushteam/nextcart/store"
)

func seededCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := New(store.NewMemoryStore())
	products := map[int64]*core.Product{
		5:  {ID: 5, Name: "Banana", Aisle: "fresh fruits", Department: "produce"},
		7:  {ID: 7, Name: "Whole Milk", Aisle: "milk", Department: "dairy eggs"},
		9:  {ID: 9, Name: "Strawberries", Aisle: "fresh fruits", Department: "produce"},
		12: {ID: 12, Name: "Sparkling Water", Aisle: "water", Department: "beverages"},
	}
	popularity := map[int64]float64{5: 0.5, 7: 0.3, 9: 0.15, 12: 0.05}
	if err := c.Seed(context.Background(), products, popularity); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	return c
}

func TestCatalog_List(t *testing.T) {
	c := seededCatalog(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		query   Query
		wantIDs []int64
	}{
		{"all sorted by id", Query{}, []int64{5, 7, 9, 12}},
		{"search by name", Query{Search: "milk"}, []int64{7}},
		{"search by aisle", Query{Search: "fruits"}, []int64{5, 9}},
		{"search by id", Query{Search: "12"}, []int64{12}},
		{"department filter", Query{Department: "produce"}, []int64{5, 9}},
		{"aisle filter case-insensitive", Query{Aisle: "Water"}, []int64{12}},
		{"no match", Query{Search: "chocolate"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := c.List(ctx, tt.query)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			var got []int64
			for _, p := range page.Products {
				got = append(got, p.ID)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("ids = %v, want %v", got, tt.wantIDs)
			}
			for i := range got {
				if got[i] != tt.wantIDs[i] {
					t.Errorf("ids = %v, want %v", got, tt.wantIDs)
					break
				}
			}
		})
	}
}

func TestCatalog_Pagination(t *testing.T) {
	c := seededCatalog(t)
	page, err := c.List(context.Background(), Query{Page: 2, PageSize: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 4 || page.TotalPages != 2 || page.HasMore {
		t.Errorf("page meta = %+v, want total=4 pages=2 has_more=false", page)
	}
	if len(page.Products) != 1 || page.Products[0].ID != 12 {
		t.Errorf("page 2 = %v, want [12]", page.Products)
	}
}

func TestCatalog_TopPopular(t *testing.T) {
	c := seededCatalog(t)
	top, err := c.TopPopular(context.Background(), 2)
	if err != nil {
		t.Fatalf("TopPopular() error = %v", err)
	}
	if len(top) != 2 || top[0].ID != 5 || top[1].ID != 7 {
		t.Errorf("top = %v, want [5 7]", top)
	}
}
