package vocab

import (
	"path/filepath"
	"testing"

	"github.com/rushteam/nextcart/core"
)

func buildFromItems(t *testing.T, items []int64, minCount int) *Vocabulary {
	t.Helper()
	b := NewBuilder(minCount)
	for _, id := range items {
		b.AddItem(id)
	}
	v, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return v
}

func TestBuilder_FrequencyFilter(t *testing.T) {
	// 5 出现 5 次、7 出现 5 次、9 出现 2 次；阈值 5 时 9 被整体剔除
	items := []int64{5, 5, 5, 5, 5, 7, 7, 7, 7, 7, 9, 9}
	v := buildFromItems(t, items, 5)

	if v.Size != 3 {
		t.Errorf("Size = %d, want 3", v.Size)
	}
	if idx, ok := v.Lookup(5); !ok || idx != 1 {
		t.Errorf("Lookup(5) = (%d, %v), want (1, true)", idx, ok)
	}
	if idx, ok := v.Lookup(7); !ok || idx != 2 {
		t.Errorf("Lookup(7) = (%d, %v), want (2, true)", idx, ok)
	}
	if _, ok := v.Lookup(9); ok {
		t.Errorf("Lookup(9) should miss: filtered items must be absent, not index 0")
	}
}

func TestBuilder_BijectionRoundTrip(t *testing.T) {
	items := []int64{42, 17, 99, 42, 17, 99, 3, 3, 3}
	v := buildFromItems(t, items, 1)

	for id, idx := range v.ItemToIndex {
		if idx == PaddingIndex {
			t.Fatalf("item %d mapped to padding index", id)
		}
		got, ok := v.ItemAt(idx)
		if !ok || got != id {
			t.Errorf("ItemAt(Lookup(%d)) = %d, want %d", id, got, id)
		}
	}
	if err := v.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestBuilder_Deterministic(t *testing.T) {
	items := []int64{10, 2, 8, 8, 2, 10, 5, 5}
	v1 := buildFromItems(t, items, 1)
	// 第二次以不同的累加顺序构建，映射必须完全一致
	b := NewBuilder(1)
	for i := len(items) - 1; i >= 0; i-- {
		b.AddItem(items[i])
	}
	v2, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if v1.Size != v2.Size {
		t.Fatalf("sizes differ: %d vs %d", v1.Size, v2.Size)
	}
	for id, idx := range v1.ItemToIndex {
		if v2.ItemToIndex[id] != idx {
			t.Errorf("item %d: index %d vs %d", id, idx, v2.ItemToIndex[id])
		}
	}
}

func TestBuilder_EmptyVocabulary(t *testing.T) {
	b := NewBuilder(100)
	b.Add(core.Transaction{UserID: 1, ItemID: 7})
	if _, err := b.Build(); !core.IsEmptyVocabulary(err) {
		t.Errorf("Build() error = %v, want EMPTY_VOCABULARY", err)
	}
}

func TestVocabulary_SaveLoad(t *testing.T) {
	v := buildFromItems(t, []int64{5, 5, 7, 7, 9}, 2)
	v.WithMetadata(map[int64]*core.Product{
		5: {ID: 5, Name: "Banana", Aisle: "fresh fruits", Department: "produce"},
	})

	path := filepath.Join(t.TempDir(), "vocabulary.json")
	if err := v.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Size != v.Size {
		t.Errorf("Size = %d, want %d", loaded.Size, v.Size)
	}
	for id, idx := range v.ItemToIndex {
		if loaded.ItemToIndex[id] != idx {
			t.Errorf("item %d: index %d, want %d", id, loaded.ItemToIndex[id], idx)
		}
	}
	if p := loaded.Metadata[5]; p == nil || p.Name != "Banana" {
		t.Errorf("metadata for item 5 = %+v, want Banana", p)
	}
}
