// Package matching отбирает интересы, видимые поставщику, и применяет к ним
// пользовательские фильтры и сортировку.
package matching

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/mmeshcher/comproum/internal/model"
)

// SortKey задаёт порядок выдачи возможностей.
type SortKey string

const (
	SortNewest     SortKey = "NEWEST"
	SortBudgetDesc SortKey = "BUDGET_DESC"
	SortBudgetAsc  SortKey = "BUDGET_ASC"
)

// All отключает фильтр по типу или состоянию.
const All = "ALL"

// Filter описывает параметры отбора возможностей.
// Пустые поля и значение All не ограничивают выдачу.
type Filter struct {
	Query     string
	Type      string
	Condition string
	MinBudget *int64 // в сентаво, включительно
	MaxBudget *int64 // в сентаво, включительно
	Sort      SortKey
}

// OpportunitiesFor возвращает открытые интересы чужих покупателей в сегментах
// поставщика. Порядок входа сохраняется.
func OpportunitiesFor(supplier *model.User, intents []model.Intent) []model.Intent {
	res := make([]model.Intent, 0, len(intents))
	if supplier == nil || len(supplier.BusinessSegments) == 0 {
		return res
	}
	for _, in := range intents {
		if Visible(supplier, &in) {
			res = append(res, in)
		}
	}
	return res
}

// Visible сообщает, видит ли поставщик интерес.
func Visible(supplier *model.User, in *model.Intent) bool {
	return in.Status == model.IntentStatusOpen &&
		in.UserID != supplier.ID &&
		supplier.HasSegment(in.Category)
}

// ApplyFilters отбирает интересы по фильтру и сортирует результат устойчиво.
func ApplyFilters(intents []model.Intent, f Filter) []model.Intent {
	res := make([]model.Intent, 0, len(intents))
	query := strings.ToLower(strings.TrimSpace(f.Query))

	for _, in := range intents {
		if matches(&in, f, query) {
			res = append(res, in)
		}
	}

	SortIntents(res, f.Sort)
	return res
}

func matches(in *model.Intent, f Filter, query string) bool {
	if query != "" &&
		!strings.Contains(strings.ToLower(in.ProductName), query) &&
		!strings.Contains(strings.ToLower(in.Description), query) {
		return false
	}
	if f.Type != "" && f.Type != All && string(in.Type) != f.Type {
		return false
	}
	if f.Condition != "" && f.Condition != All &&
		string(in.Condition) != f.Condition && in.Condition != model.ConditionBoth {
		return false
	}
	if f.MinBudget != nil && in.Budget < *f.MinBudget {
		return false
	}
	if f.MaxBudget != nil && in.Budget > *f.MaxBudget {
		return false
	}
	return true
}

// SortIntents сортирует интересы на месте. При равенстве ключей сохраняется
// исходный порядок. Неизвестный ключ трактуется как SortNewest.
func SortIntents(intents []model.Intent, key SortKey) {
	switch key {
	case SortBudgetDesc:
		slices.SortStableFunc(intents, func(a, b model.Intent) int {
			return cmp.Compare(b.Budget, a.Budget)
		})
	case SortBudgetAsc:
		slices.SortStableFunc(intents, func(a, b model.Intent) int {
			return cmp.Compare(a.Budget, b.Budget)
		})
	default:
		slices.SortStableFunc(intents, func(a, b model.Intent) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}
}

// ParseSortKey разбирает ключ сортировки, по умолчанию SortNewest.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToUpper(s)); k {
	case SortBudgetDesc, SortBudgetAsc:
		return k
	}
	return SortNewest
}

// ParseBound разбирает границу бюджета в реалах. Пустое, нечисловое или
// непредставимое в сентаво значение означает отсутствие границы.
func ParseBound(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	cents, err := model.ToCents(v)
	if err != nil {
		return nil
	}
	return &cents
}
