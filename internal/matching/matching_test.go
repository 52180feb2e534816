package matching

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/comproum/internal/model"
)

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func intent(name string, budget int64, typ model.IntentType, cond model.Condition, ageHours int) model.Intent {
	return model.Intent{
		ID:          uuid.Must(uuid.NewV4()),
		UserID:      uuid.Must(uuid.NewV4()),
		Type:        typ,
		Category:    "Eletrônicos & TI",
		ProductName: name,
		Description: "descrição de " + name,
		Budget:      budget,
		Condition:   cond,
		Status:      model.IntentStatusOpen,
		CreatedAt:   base.Add(-time.Duration(ageHours) * time.Hour),
	}
}

func ptr(v int64) *int64 { return &v }

func names(in []model.Intent) []string {
	res := make([]string, 0, len(in))
	for _, i := range in {
		res = append(res, i.ProductName)
	}
	return res
}

func TestOpportunitiesFor(t *testing.T) {
	supplier := &model.User{
		ID:               uuid.Must(uuid.NewV4()),
		Role:             model.RoleSupplier,
		BusinessSegments: []string{"Eletrônicos & TI"},
	}

	visible := intent("MacBook", 650000, model.IntentTypeBuy, model.ConditionBoth, 1)

	closed := intent("Closed", 100, model.IntentTypeBuy, model.ConditionNew, 1)
	closed.Status = model.IntentStatusClosed

	own := intent("Own", 100, model.IntentTypeBuy, model.ConditionNew, 1)
	own.UserID = supplier.ID

	otherSegment := intent("Shoes", 100, model.IntentTypeBuy, model.ConditionNew, 1)
	otherSegment.Category = "Moda & Acessórios"

	got := OpportunitiesFor(supplier, []model.Intent{closed, visible, own, otherSegment})
	assert.Equal(t, []string{"MacBook"}, names(got))

	fashion := &model.User{ID: uuid.Must(uuid.NewV4()), BusinessSegments: []string{"Moda & Acessórios"}}
	assert.Equal(t, []string{"Shoes"}, names(OpportunitiesFor(fashion, []model.Intent{visible, otherSegment})))

	noSegments := &model.User{ID: uuid.Must(uuid.NewV4())}
	assert.Empty(t, OpportunitiesFor(noSegments, []model.Intent{visible}))
}

func TestApplyFilters(t *testing.T) {
	all := []model.Intent{
		intent("iPhone 15", 500000, model.IntentTypeBuy, model.ConditionNew, 3),
		intent("PS5", 300000, model.IntentTypeTrade, model.ConditionUsed, 2),
		intent("MacBook Air", 650000, model.IntentTypeBuy, model.ConditionBoth, 1),
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name:   "default newest first",
			filter: Filter{},
			want:   []string{"MacBook Air", "PS5", "iPhone 15"},
		},
		{
			name:   "query matches product case-insensitive",
			filter: Filter{Query: "IPHONE"},
			want:   []string{"iPhone 15"},
		},
		{
			name:   "query matches description",
			filter: Filter{Query: "descrição de ps5"},
			want:   []string{"PS5"},
		},
		{
			name:   "type filter",
			filter: Filter{Type: "TRADE"},
			want:   []string{"PS5"},
		},
		{
			name:   "type ALL keeps everything",
			filter: Filter{Type: All, Sort: SortBudgetAsc},
			want:   []string{"PS5", "iPhone 15", "MacBook Air"},
		},
		{
			name:   "condition filter keeps BOTH intents",
			filter: Filter{Condition: "USED", Sort: SortBudgetDesc},
			want:   []string{"MacBook Air", "PS5"},
		},
		{
			name:   "budget bounds inclusive",
			filter: Filter{MinBudget: ptr(300000), MaxBudget: ptr(500000), Sort: SortBudgetAsc},
			want:   []string{"PS5", "iPhone 15"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(ApplyFilters(all, tt.filter)))
		})
	}
}

func TestApplyFilters_StableOnTies(t *testing.T) {
	a := intent("first", 10000, model.IntentTypeBuy, model.ConditionNew, 1)
	b := intent("second", 10000, model.IntentTypeBuy, model.ConditionNew, 5)

	got := ApplyFilters([]model.Intent{a, b}, Filter{Sort: SortBudgetDesc})
	assert.Equal(t, []string{"first", "second"}, names(got))

	got = ApplyFilters([]model.Intent{b, a}, Filter{Sort: SortBudgetAsc})
	assert.Equal(t, []string{"second", "first"}, names(got))
}

func TestApplyFilters_FilterSortCommute(t *testing.T) {
	all := []model.Intent{
		intent("a", 200, model.IntentTypeBuy, model.ConditionNew, 4),
		intent("b", 100, model.IntentTypeSell, model.ConditionBoth, 3),
		intent("c", 200, model.IntentTypeBuy, model.ConditionUsed, 2),
		intent("d", 100, model.IntentTypeBuy, model.ConditionBoth, 1),
		intent("e", 300, model.IntentTypeTrade, model.ConditionNew, 6),
	}
	filters := []Filter{
		{Type: "BUY", Sort: SortBudgetDesc},
		{Condition: "NEW", Sort: SortBudgetAsc},
		{MinBudget: ptr(150), Sort: SortNewest},
		{Query: "a", Sort: SortBudgetDesc},
	}

	for _, f := range filters {
		filteredThenSorted := ApplyFilters(all, f)

		sorted := append([]model.Intent(nil), all...)
		SortIntents(sorted, f.Sort)
		sortedThenFiltered := ApplyFilters(sorted, Filter{
			Query:     f.Query,
			Type:      f.Type,
			Condition: f.Condition,
			MinBudget: f.MinBudget,
			MaxBudget: f.MaxBudget,
			Sort:      f.Sort,
		})

		require.Equal(t, names(filteredThenSorted), names(sortedThenFiltered))
	}
}

func TestApplyFilters_DoesNotMutateInput(t *testing.T) {
	all := []model.Intent{
		intent("old", 100, model.IntentTypeBuy, model.ConditionNew, 5),
		intent("new", 200, model.IntentTypeBuy, model.ConditionNew, 1),
	}
	_ = ApplyFilters(all, Filter{})
	assert.Equal(t, []string{"old", "new"}, names(all))
}

func TestParseBound(t *testing.T) {
	tests := []struct {
		raw  string
		want *int64
	}{
		{"", nil},
		{"   ", nil},
		{"abc", nil},
		{"NaN", nil},
		{"6500", ptr(650000)},
		{"10.5", ptr(1050)},
		{"1e20", nil},
		{"-1e20", nil},
		{"+Inf", nil},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBound(tt.raw))
		})
	}
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortBudgetDesc, ParseSortKey("budget_desc"))
	assert.Equal(t, SortBudgetAsc, ParseSortKey("BUDGET_ASC"))
	assert.Equal(t, SortNewest, ParseSortKey(""))
	assert.Equal(t, SortNewest, ParseSortKey("whatever"))
}

func TestApplyFilters_HugeBoundIsIgnored(t *testing.T) {
	all := []model.Intent{intent("iPhone 15", 650000, model.IntentTypeBuy, model.ConditionNew, 1)}

	f := Filter{MinBudget: ParseBound("-1e20"), MaxBudget: ParseBound("1e20")}
	assert.Equal(t, []string{"iPhone 15"}, names(ApplyFilters(all, f)))
}
