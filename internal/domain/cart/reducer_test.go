package cart

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/domain/stock"
)

func tshirt(color, size string, ceiling *int) Product {
	return Product{
		ID:            "prod-tee",
		Name:          "Printed Tee",
		Image:         "tee.png",
		Price:         499,
		StockQuantity: ceiling,
		SelectedColor: color,
		SelectedSize:  size,
	}
}

func apply(t *testing.T, s State, cmds ...Command) (State, []Notice) {
	t.Helper()
	var notices []Notice
	for _, c := range cmds {
		var n Notice
		s, n = Reduce(s, c)
		notices = append(notices, n)
	}
	return s, notices
}

// ============================================
// UID Tests
// ============================================

func TestUID(t *testing.T) {
	tests := []struct {
		name     string
		color    string
		size     string
		expected string
	}{
		{"no variant", "", "", "p1"},
		{"color only", "Red", "", "p1::color:Red"},
		{"size only", "", "M", "p1::size:M"},
		{"color and size", "Red", "M", "p1::color:Red::size:M"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, UID("p1", tt.color, tt.size))
		})
	}
}

func TestValidPrice(t *testing.T) {
	assert.True(t, ValidPrice(0.01))
	assert.False(t, ValidPrice(0))
	assert.False(t, ValidPrice(-5))
	assert.False(t, ValidPrice(math.NaN()))
	assert.False(t, ValidPrice(math.Inf(1)))
}

// ============================================
// AddItem Tests
// ============================================

func TestReduce_AddItem_MergesSameVariant(t *testing.T) {
	s, notices := apply(t, NewState(),
		AddItem{Product: tshirt("Red", "M", nil), Quantity: 2},
		AddItem{Product: tshirt("Red", "M", nil), Quantity: 3},
	)

	require.Len(t, s.Items, 1)
	assert.Equal(t, "prod-tee::color:Red::size:M", s.Items[0].UID)
	assert.Equal(t, 5, s.Items[0].Quantity)
	assert.Equal(t, CodeAdded, notices[1].Code)
	assert.Equal(t, KindInfo, notices[1].Kind)
	assert.Equal(t, 5, notices[1].ItemCount)
}

func TestReduce_AddItem_VariantsAreDistinct(t *testing.T) {
	s, _ := apply(t, NewState(),
		AddItem{Product: tshirt("Red", "M", nil), Quantity: 1},
		AddItem{Product: tshirt("Blue", "M", nil), Quantity: 1},
	)

	require.Len(t, s.Items, 2)
	assert.NotEqual(t, s.Items[0].UID, s.Items[1].UID)
	assert.Equal(t, 2, Count(s.Items))
}

func TestReduce_AddItem_StockClampScenario(t *testing.T) {
	s, notices := apply(t, NewState(),
		AddItem{Product: tshirt("", "", stock.Ceiling(5)), Quantity: 3},
		AddItem{Product: tshirt("", "", stock.Ceiling(5)), Quantity: 4},
	)

	require.Len(t, s.Items, 1)
	assert.Equal(t, 5, s.Items[0].Quantity)

	n := notices[1]
	assert.Equal(t, KindWarning, n.Kind)
	assert.Equal(t, CodeReduced, n.Code)
	assert.Equal(t, 2, n.Granted)
	assert.Contains(t, n.Message, "Only 2 more")
}

func TestReduce_AddItem_CeilingSharedAcrossVariants(t *testing.T) {
	s, notices := apply(t, NewState(),
		AddItem{Product: tshirt("Red", "M", stock.Ceiling(4)), Quantity: 3},
		AddItem{Product: tshirt("Blue", "M", stock.Ceiling(4)), Quantity: 3},
		AddItem{Product: tshirt("Green", "M", stock.Ceiling(4)), Quantity: 1},
	)

	require.Len(t, s.Items, 2)
	assert.Equal(t, 4, s.Held("prod-tee", ""))
	assert.Equal(t, CodeReduced, notices[1].Code)
	assert.Equal(t, CodeOutOfStock, notices[2].Code)
}

func TestReduce_AddItem_OutOfStockAddsNothing(t *testing.T) {
	s, notices := apply(t, NewState(),
		AddItem{Product: tshirt("", "", stock.Ceiling(0)), Quantity: 1},
	)

	assert.Empty(t, s.Items)
	assert.Equal(t, CodeOutOfStock, notices[0].Code)
	assert.Equal(t, KindWarning, notices[0].Kind)
	assert.Equal(t, 0, notices[0].ItemCount)
}

func TestReduce_AddItem_NewerCeilingAppliesToAllVariants(t *testing.T) {
	s, _ := apply(t, NewState(),
		AddItem{Product: tshirt("Red", "", stock.Ceiling(10)), Quantity: 2},
		AddItem{Product: tshirt("Blue", "", stock.Ceiling(3)), Quantity: 5},
	)

	require.Len(t, s.Items, 2)
	assert.Equal(t, 1, s.Items[1].Quantity)
	for _, it := range s.Items {
		require.NotNil(t, it.StockQuantity)
		assert.Equal(t, 3, *it.StockQuantity)
	}
}

func TestReduce_AddItem_InheritsKnownCeiling(t *testing.T) {
	s, notices := apply(t, NewState(),
		AddItem{Product: tshirt("Red", "", stock.Ceiling(2)), Quantity: 2},
		AddItem{Product: tshirt("Blue", "", nil), Quantity: 1},
	)

	require.Len(t, s.Items, 1)
	assert.Equal(t, CodeOutOfStock, notices[1].Code)
}

func TestReduce_AddItem_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		code    string
	}{
		{"zero price", Product{ID: "p", Name: "Mug", Price: 0}, CodeInvalidPrice},
		{"negative price", Product{ID: "p", Name: "Mug", Price: -1}, CodeInvalidPrice},
		{"NaN price", Product{ID: "p", Name: "Mug", Price: math.NaN()}, CodeInvalidPrice},
		{"missing product id", Product{Name: "Mug", Price: 10}, CodeInvalidProduct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, n := Reduce(NewState(), AddItem{Product: tt.product, Quantity: 1})
			assert.Empty(t, s.Items)
			assert.Equal(t, tt.code, n.Code)
			assert.Equal(t, KindError, n.Kind)
		})
	}
}

func TestReduce_AddItem_NormalizesQuantity(t *testing.T) {
	s, _ := Reduce(NewState(), AddItem{Product: tshirt("", "", nil), Quantity: 0})
	require.Len(t, s.Items, 1)
	assert.Equal(t, 1, s.Items[0].Quantity)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	start, _ := Reduce(NewState(), AddItem{Product: tshirt("", "", stock.Ceiling(9)), Quantity: 2})
	start.Selected[start.Items[0].UID] = struct{}{}
	before := start.Clone()

	_, _ = apply(t, start,
		AddItem{Product: tshirt("", "", stock.Ceiling(5)), Quantity: 1},
		UpdateQuantity{UID: start.Items[0].UID, Quantity: 4},
		RemoveItem{UID: start.Items[0].UID},
		Clear{},
	)

	assert.Equal(t, before, start)
}

// ============================================
// Merge Property Tests
// ============================================

func TestReduce_MergeSumsGrantedQuantities(t *testing.T) {
	sequences := [][]int{
		{1, 2, 3},
		{3, 2, 1},
		{5},
		{2, 2, 2, 2},
	}

	for _, seq := range sequences {
		var cmds []Command
		for _, q := range seq {
			cmds = append(cmds, AddItem{Product: tshirt("Red", "L", nil), Quantity: q})
		}
		s, notices := apply(t, NewState(), cmds...)

		granted := 0
		for _, n := range notices {
			granted += n.Granted
		}
		require.Len(t, s.Items, 1)
		assert.Equal(t, granted, s.Items[0].Quantity)
	}
}

func TestReduce_HeldNeverExceedsCeiling(t *testing.T) {
	cmds := []Command{
		AddItem{Product: tshirt("Red", "S", stock.Ceiling(6)), Quantity: 4},
		AddItem{Product: tshirt("Blue", "S", stock.Ceiling(6)), Quantity: 4},
		UpdateQuantity{UID: UID("prod-tee", "Red", "S"), Quantity: 9},
		AddItem{Product: tshirt("Red", "S", stock.Ceiling(6)), Quantity: 1},
		UpdateQuantity{UID: UID("prod-tee", "Blue", "S"), Quantity: 6},
		AddItem{Product: tshirt("Green", "S", stock.Ceiling(6)), Quantity: 2},
	}

	s := NewState()
	for _, c := range cmds {
		s, _ = Reduce(s, c)
		assert.LessOrEqual(t, s.Held("prod-tee", ""), 6)
	}
}

// ============================================
// UpdateQuantity Tests
// ============================================

func TestReduce_UpdateQuantity(t *testing.T) {
	red := UID("prod-tee", "Red", "")
	blue := UID("prod-tee", "Blue", "")
	base, _ := apply(t, NewState(),
		AddItem{Product: tshirt("Red", "", stock.Ceiling(5)), Quantity: 2},
		AddItem{Product: tshirt("Blue", "", stock.Ceiling(5)), Quantity: 1},
	)

	t.Run("within remaining stock", func(t *testing.T) {
		s, n := Reduce(base, UpdateQuantity{UID: red, Quantity: 4})
		assert.True(t, n.IsZero())
		assert.Equal(t, 4, s.Items[0].Quantity)
	})

	t.Run("bounded by other variants", func(t *testing.T) {
		s, n := Reduce(base, UpdateQuantity{UID: red, Quantity: 10})
		assert.Equal(t, 4, s.Items[0].Quantity)
		assert.Equal(t, CodeQuantityReduced, n.Code)
		assert.Equal(t, KindWarning, n.Kind)
		assert.Equal(t, 4, n.Granted)
	})

	t.Run("zero removes the line and its selection", func(t *testing.T) {
		selected, _ := Reduce(base, SelectAll{})
		s, n := Reduce(selected, UpdateQuantity{UID: blue, Quantity: 0})
		assert.Len(t, s.Items, 1)
		assert.False(t, s.IsSelected(blue))
		assert.Equal(t, CodeRemoved, n.Code)
	})

	t.Run("no remaining stock removes the line", func(t *testing.T) {
		full, _ := Reduce(base, UpdateQuantity{UID: red, Quantity: 5})
		full.Items[0].Quantity = 5 // simulate other variant already holding all stock
		full.Items[1].Quantity = 1
		full.setCeiling("prod-tee", 5)
		s, n := Reduce(full, UpdateQuantity{UID: blue, Quantity: 1})
		assert.Len(t, s.Items, 1)
		assert.Equal(t, CodeOutOfStock, n.Code)
	})

	t.Run("unknown uid", func(t *testing.T) {
		s, n := Reduce(base, UpdateQuantity{UID: "nope", Quantity: 1})
		assert.Equal(t, base, s)
		assert.Equal(t, CodeUnknownItem, n.Code)
	})
}

// ============================================
// Selection Tests
// ============================================

func TestReduce_Selection(t *testing.T) {
	a := UID("prod-tee", "Red", "")
	b := UID("prod-tee", "Blue", "")
	base, _ := apply(t, NewState(),
		AddItem{Product: tshirt("Red", "", nil), Quantity: 1},
		AddItem{Product: tshirt("Blue", "", nil), Quantity: 2},
	)

	t.Run("toggle", func(t *testing.T) {
		s, _ := Reduce(base, ToggleSelect{UID: a})
		assert.Equal(t, []string{a}, s.SelectedIDs())
		s, _ = Reduce(s, ToggleSelect{UID: a})
		assert.Empty(t, s.SelectedIDs())
	})

	t.Run("toggle unknown uid is ignored", func(t *testing.T) {
		s, n := Reduce(base, ToggleSelect{UID: "ghost"})
		assert.Empty(t, s.SelectedIDs())
		assert.Equal(t, CodeUnknownItem, n.Code)
	})

	t.Run("select all and deselect all", func(t *testing.T) {
		s, _ := Reduce(base, SelectAll{})
		assert.Equal(t, []string{a, b}, s.SelectedIDs())
		s, _ = Reduce(s, DeselectAll{})
		assert.Empty(t, s.SelectedIDs())
	})

	t.Run("set selected drops unknown ids", func(t *testing.T) {
		s, _ := Reduce(base, SetSelected{UIDs: []string{b, "ghost", b}})
		assert.Equal(t, []string{b}, s.SelectedIDs())

		again, _ := Reduce(s, SetSelected{UIDs: s.SelectedIDs()})
		assert.Equal(t, s.SelectedIDs(), again.SelectedIDs())
	})

	t.Run("remove prunes selection", func(t *testing.T) {
		s, _ := Reduce(base, SelectAll{})
		s, _ = Reduce(s, RemoveItem{UID: a})
		assert.False(t, s.IsSelected(a))
		assert.Equal(t, []string{b}, s.SelectedIDs())
	})

	t.Run("payable uses selection or whole cart", func(t *testing.T) {
		assert.Len(t, base.Payable(), 2)
		s, _ := Reduce(base, SetSelected{UIDs: []string{b}})
		payable := s.Payable()
		require.Len(t, payable, 1)
		assert.Equal(t, b, payable[0].UID)
	})

	t.Run("clear empties items and selection", func(t *testing.T) {
		s, _ := Reduce(base, SelectAll{})
		s, n := Reduce(s, Clear{})
		assert.Empty(t, s.Items)
		assert.Empty(t, s.Selected)
		assert.Equal(t, CodeCleared, n.Code)
	})
}

// ============================================
// Totals Tests
// ============================================

func TestTotals(t *testing.T) {
	items := []LineItem{
		{UID: "a", ProductID: "a", Price: 19.99, Quantity: 2},
		{UID: "b", ProductID: "b", Price: 0.1, Quantity: 3},
	}

	assert.True(t, decimal.RequireFromString("40.28").Equal(Total(items)), Total(items).String())
	assert.Equal(t, 5, Count(items))
	assert.True(t, Total(nil).IsZero())
}

// ============================================
// Hydrate Tests
// ============================================

func TestReduce_Hydrate(t *testing.T) {
	items := []LineItem{
		{UID: "a", ProductID: "a", Name: "A", Price: 10, Quantity: 1},
		{UID: "bad-price", ProductID: "b", Name: "B", Price: 0, Quantity: 1},
		{UID: "nan", ProductID: "c", Name: "C", Price: math.NaN(), Quantity: 1},
		{UID: "zero-qty", ProductID: "d", Name: "D", Price: 5, Quantity: 0},
		{ProductID: "e", Name: "E", Price: 5, Quantity: 2, SelectedSize: "L"},
	}

	s, n := Reduce(NewState(), Hydrate{Items: items})

	require.Len(t, s.Items, 2)
	assert.Equal(t, "a", s.Items[0].UID)
	assert.Equal(t, "e::size:L", s.Items[1].UID)
	assert.Equal(t, CodeDroppedInvalid, n.Code)
	assert.Contains(t, n.Message, "3")
}

func TestReduce_HydrateReappliesCeiling(t *testing.T) {
	items := []LineItem{
		{UID: "p::size:S", ProductID: "p", Price: 10, Quantity: 3, StockQuantity: stock.Ceiling(4)},
		{UID: "p::size:M", ProductID: "p", Price: 10, Quantity: 3, StockQuantity: stock.Ceiling(4)},
	}

	s, _ := Reduce(NewState(), Hydrate{Items: items})
	assert.Equal(t, 4, s.Held("p", ""))
}

func TestReduce_HydrateUsesLowestCeilingPerProduct(t *testing.T) {
	items := []LineItem{
		{UID: "p::size:S", ProductID: "p", Price: 10, Quantity: 2, StockQuantity: stock.Ceiling(9)},
		{UID: "p::size:M", ProductID: "p", Price: 10, Quantity: 2, StockQuantity: stock.Ceiling(3)},
		{UID: "p::size:L", ProductID: "p", Price: 10, Quantity: 1},
	}

	s, n := Reduce(NewState(), Hydrate{Items: items})

	require.Len(t, s.Items, 2)
	assert.Equal(t, 3, s.Held("p", ""))
	assert.Equal(t, 2, s.Items[0].Quantity)
	assert.Equal(t, 1, s.Items[1].Quantity)
	for _, it := range s.Items {
		require.NotNil(t, it.StockQuantity)
		assert.Equal(t, 3, *it.StockQuantity)
	}
	assert.Equal(t, CodeDroppedInvalid, n.Code)
}

// ============================================
// Line Quantity Limit Tests
// ============================================

func TestReduce_LineQuantityLimit(t *testing.T) {
	t.Run("oversized add is rejected", func(t *testing.T) {
		s, n := Reduce(NewState(), AddItem{Product: tshirt("", "", nil), Quantity: math.MaxInt})
		assert.Empty(t, s.Items)
		assert.Equal(t, CodeQuantityLimit, n.Code)
		assert.Equal(t, KindError, n.Kind)
	})

	t.Run("merges never pass the limit", func(t *testing.T) {
		s, notices := apply(t, NewState(),
			AddItem{Product: tshirt("", "", nil), Quantity: MaxLineQuantity},
			AddItem{Product: tshirt("", "", nil), Quantity: 1},
		)
		require.Len(t, s.Items, 1)
		assert.Equal(t, MaxLineQuantity, s.Items[0].Quantity)
		assert.Equal(t, MaxLineQuantity, Count(s.Items))
		assert.Equal(t, CodeQuantityLimit, notices[1].Code)
		assert.Equal(t, 0, notices[1].Granted)
	})

	t.Run("partial merge grants the remaining room", func(t *testing.T) {
		s, notices := apply(t, NewState(),
			AddItem{Product: tshirt("", "", nil), Quantity: MaxLineQuantity - 2},
			AddItem{Product: tshirt("", "", nil), Quantity: 5},
		)
		assert.Equal(t, MaxLineQuantity, s.Items[0].Quantity)
		assert.Equal(t, CodeQuantityLimit, notices[1].Code)
		assert.Equal(t, 2, notices[1].Granted)
	})

	t.Run("update is capped", func(t *testing.T) {
		base, _ := Reduce(NewState(), AddItem{Product: tshirt("", "", nil), Quantity: 1})
		s, n := Reduce(base, UpdateQuantity{UID: base.Items[0].UID, Quantity: math.MaxInt})
		assert.Equal(t, MaxLineQuantity, s.Items[0].Quantity)
		assert.Equal(t, CodeQuantityLimit, n.Code)
		assert.True(t, Total(s.Items).IsPositive())
	})

	t.Run("hydrate caps stored quantities", func(t *testing.T) {
		items := []LineItem{
			{UID: "a", ProductID: "a", Price: 1, Quantity: math.MaxInt},
			{UID: "a", ProductID: "a", Price: 1, Quantity: math.MaxInt},
		}
		s, _ := Reduce(NewState(), Hydrate{Items: items})
		require.Len(t, s.Items, 1)
		assert.Equal(t, MaxLineQuantity, s.Items[0].Quantity)
	})
}
