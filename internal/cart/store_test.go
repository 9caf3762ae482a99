package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePersister records saves and can seed a snapshot for restore tests.
type fakePersister struct {
	saved   [][]Item
	seed    []Item
	saveErr error
}

func (f *fakePersister) Save(key string, v any) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	items := v.([]Item)
	cp := make([]Item, len(items))
	copy(cp, items)
	f.saved = append(f.saved, cp)
	return nil
}

func (f *fakePersister) Load(key string, v any) (bool, error) {
	if f.seed == nil {
		return false, nil
	}
	*(v.(*[]Item)) = f.seed
	return true, nil
}

func TestStore_AddItem_AppendsNewLine(t *testing.T) {
	s := NewStore(nil)

	require.NoError(t, s.AddItem(Item{ID: "A", Name: "Sneakers", Price: 1000, Quantity: 2}))

	assert.Len(t, s.Items(), 1)
	assert.Equal(t, 2, s.TotalItems())
	assert.Equal(t, 2000, s.TotalAmount())
}

func TestStore_AddItem_MergesSameIDAndColor(t *testing.T) {
	s := NewStore(nil)

	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 2, Color: "red"}))
	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 3, Color: "red"}))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
}

func TestStore_AddItem_DifferentColorsAreDistinctLines(t *testing.T) {
	s := NewStore(nil)

	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 2}))
	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 1, Color: "red"}))

	assert.Len(t, s.Items(), 2)
	assert.Equal(t, 3, s.TotalItems())
	assert.Equal(t, 3000, s.TotalAmount())
}

func TestStore_AddItem_Validation(t *testing.T) {
	s := NewStore(nil)

	assert.ErrorIs(t, s.AddItem(Item{ID: "", Quantity: 1}), ErrInvalidProduct)
	assert.ErrorIs(t, s.AddItem(Item{ID: "A", Quantity: 0}), ErrInvalidQuantity)
	assert.ErrorIs(t, s.AddItem(Item{ID: "A", Quantity: -1}), ErrInvalidQuantity)
	assert.Empty(t, s.Items())
}

func TestStore_UpdateQuantity_SetsQuantity(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.AddItem(Item{ID: "A", Price: 500, Quantity: 2}))

	require.NoError(t, s.UpdateQuantity("A", 7, ""))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].Quantity)
	assert.Equal(t, 3500, s.TotalAmount())
}

func TestStore_UpdateQuantity_ZeroRemovesLine(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.AddItem(Item{ID: "A", Price: 500, Quantity: 2}))

	require.NoError(t, s.UpdateQuantity("A", 0, ""))

	assert.Empty(t, s.Items())
	assert.Equal(t, 0, s.TotalItems())
	assert.Equal(t, 0, s.TotalAmount())
}

func TestStore_UpdateQuantity_NegativeRemovesLine(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.AddItem(Item{ID: "A", Price: 500, Quantity: 2, Color: "blue"}))

	require.NoError(t, s.UpdateQuantity("A", -3, "blue"))

	assert.Empty(t, s.Items())
}

func TestStore_RemoveItem_MatchesColor(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 2}))
	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 1, Color: "red"}))

	require.NoError(t, s.RemoveItem("A", "red"))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "", items[0].Color)
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 2}))
	require.NoError(t, s.AddItem(Item{ID: "B", Price: 200, Quantity: 1}))

	s.Clear()

	assert.Empty(t, s.Items())
	assert.Equal(t, 0, s.TotalItems())
	assert.Equal(t, 0, s.TotalAmount())
}

// Invariant: after any sequence of mutations, TotalAmount equals the sum of
// price*quantity over surviving lines and no line has quantity <= 0.
func TestStore_TotalsInvariant(t *testing.T) {
	s := NewStore(nil)

	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 2}))
	require.NoError(t, s.AddItem(Item{ID: "B", Price: 250, Quantity: 4}))
	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 1, Color: "red"}))
	require.NoError(t, s.UpdateQuantity("B", 1, ""))
	require.NoError(t, s.RemoveItem("A", ""))
	require.NoError(t, s.UpdateQuantity("A", 0, "red"))

	wantAmount, wantItems := 0, 0
	for _, it := range s.Items() {
		assert.Greater(t, it.Quantity, 0)
		wantAmount += it.Price * it.Quantity
		wantItems += it.Quantity
	}
	assert.Equal(t, wantAmount, s.TotalAmount())
	assert.Equal(t, wantItems, s.TotalItems())
}

func TestStore_ExampleScenario(t *testing.T) {
	s := NewStore(nil)

	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 2}))
	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 1, Color: "red"}))

	assert.Equal(t, 3, s.TotalItems())
	assert.Equal(t, 3000, s.TotalAmount())
}

func TestStore_PersistsEveryMutation(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(p)

	require.NoError(t, s.AddItem(Item{ID: "A", Price: 1000, Quantity: 2}))
	require.NoError(t, s.UpdateQuantity("A", 5, ""))
	require.NoError(t, s.RemoveItem("A", ""))
	s.Clear()

	require.Len(t, p.saved, 4)
	assert.Equal(t, 5, p.saved[1][0].Quantity)
	assert.Empty(t, p.saved[3])
}

func TestStore_RestoresFromSnapshot(t *testing.T) {
	p := &fakePersister{seed: []Item{
		{ID: "A", Price: 1000, Quantity: 2},
		{ID: "B", Price: 300, Quantity: 1},
	}}
	s := NewStore(p)

	assert.Equal(t, 3, s.TotalItems())
	assert.Equal(t, 2300, s.TotalAmount())
}
