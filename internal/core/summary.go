package core

// KindTotal is the sum of budget amounts for one kind.
type KindTotal struct {
	Kind   Kind
	Amount Money
	Count  int
}

// SummarizeBudgets totals budget amounts per kind, expenses first.
func SummarizeBudgets(budgets []Budget) []KindTotal {
	totals := []KindTotal{{Kind: KindExpense}, {Kind: KindIncome}}
	for _, b := range budgets {
		for i := range totals {
			if totals[i].Kind == b.Type {
				totals[i].Amount.Cents += b.Amount.Cents
				totals[i].Count++
			}
		}
	}
	return totals
}
