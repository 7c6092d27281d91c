package core

import (
	"encoding/json"
	"testing"
)

func TestBudgetInputValidate(t *testing.T) {
	good := BudgetInput{CategoryID: "5", Amount: NewMoney(100), Type: KindExpense}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []BudgetInput{
		{CategoryID: "", Amount: NewMoney(1), Type: KindExpense},
		{CategoryID: "5", Amount: Money{}, Type: KindExpense},
		{CategoryID: "5", Amount: Money{Cents: -100}, Type: KindIncome},
		{CategoryID: "5", Amount: NewMoney(1), Type: "savings"},
	}
	for i, in := range bads {
		if err := in.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestBudgetUpdateValidate(t *testing.T) {
	amount := NewMoney(150)
	if err := (BudgetUpdate{Amount: &amount}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (BudgetUpdate{}).Validate(); err != nil {
		t.Fatalf("empty update should be valid, got %v", err)
	}
	zero := Money{}
	if err := (BudgetUpdate{Amount: &zero}).Validate(); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestBudgetUpdateOmitsNilFields(t *testing.T) {
	amount := NewMoney(150)
	data, err := json.Marshal(BudgetUpdate{Amount: &amount})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"amount":150}` {
		t.Fatalf("unexpected body %s", data)
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := (Settings{Theme: ThemeDark, Currency: "USD"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Settings{Theme: "blue", Currency: "USD"}).Validate(); err != ErrInvalidTheme {
		t.Fatalf("expected ErrInvalidTheme, got %v", err)
	}
	if err := (Settings{Theme: ThemeLight}).Validate(); err != ErrEmptyCurrency {
		t.Fatalf("expected ErrEmptyCurrency, got %v", err)
	}
}

func TestToggledTheme(t *testing.T) {
	if got := (User{Theme: ThemeLight}).ToggledTheme(); got != ThemeDark {
		t.Fatalf("got %q", got)
	}
	if got := (User{Theme: ThemeDark}).ToggledTheme(); got != ThemeLight {
		t.Fatalf("got %q", got)
	}
}

func TestSummarizeBudgets(t *testing.T) {
	totals := SummarizeBudgets([]Budget{
		{ID: "1", Amount: NewMoney(10), Type: KindExpense},
		{ID: "2", Amount: NewMoney(5), Type: KindExpense},
		{ID: "3", Amount: NewMoney(100), Type: KindIncome},
	})
	if totals[0].Kind != KindExpense || totals[0].Amount.Cents != 1500 || totals[0].Count != 2 {
		t.Fatalf("unexpected expense total %+v", totals[0])
	}
	if totals[1].Kind != KindIncome || totals[1].Amount.Cents != 10000 || totals[1].Count != 1 {
		t.Fatalf("unexpected income total %+v", totals[1])
	}
}
