package core

import (
	"errors"
	"strings"
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"

	ThemeLight = "light"
	ThemeDark  = "dark"
)

type (
	// Kind tags a budget or category as money going out or coming in.
	Kind string

	User struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Email           string `json:"email"`
		IsEmailVerified bool   `json:"is_email_verified"`
		Theme           string `json:"theme,omitempty"`
		Currency        string `json:"currency,omitempty"`
		Language        string `json:"language,omitempty"`
	}

	Settings struct {
		Theme    string `json:"theme"`
		Currency string `json:"currency"`
		Language string `json:"language"`
	}

	Category struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type Kind   `json:"type"`
	}

	CategoryInput struct {
		Name string `json:"name"`
		Type Kind   `json:"type"`
	}

	CategoryUpdate struct {
		Name *string `json:"name,omitempty"`
		Type *Kind   `json:"type,omitempty"`
	}

	Budget struct {
		ID         string    `json:"id"`
		CategoryID string    `json:"category_id"`
		Category   *Category `json:"category,omitempty"`
		Amount     Money     `json:"amount"`
		Type       Kind      `json:"type"`
		Status     string    `json:"status,omitempty"`
	}

	BudgetInput struct {
		CategoryID string `json:"category_id"`
		Amount     Money  `json:"amount"`
		Type       Kind   `json:"type"`
	}

	// BudgetUpdate carries only the fields being changed; nil fields are not sent.
	BudgetUpdate struct {
		CategoryID *string `json:"category_id,omitempty"`
		Amount     *Money  `json:"amount,omitempty"`
		Type       *Kind   `json:"type,omitempty"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidKind     = errors.New("invalid type: must be 'expense' or 'income'")
	ErrEmptyCategoryID = errors.New("empty category id")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidTheme    = errors.New("invalid theme: must be 'light' or 'dark'")
	ErrEmptyCurrency   = errors.New("empty currency")
)

// EntityID implements the store's Entity constraint.
func (b Budget) EntityID() string { return b.ID }

// EntityID implements the store's Entity constraint.
func (c Category) EntityID() string { return c.ID }

func (k Kind) Validate() error {
	switch k {
	case KindExpense, KindIncome:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (in BudgetInput) Validate() error {
	if strings.TrimSpace(in.CategoryID) == "" {
		return ErrEmptyCategoryID
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	return in.Type.Validate()
}

func (u BudgetUpdate) Validate() error {
	if u.CategoryID != nil && strings.TrimSpace(*u.CategoryID) == "" {
		return ErrEmptyCategoryID
	}
	if u.Amount != nil {
		if err := u.Amount.Validate(); err != nil {
			return err
		}
	}
	if u.Type != nil {
		return u.Type.Validate()
	}
	return nil
}

func (in CategoryInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}
	if len(in.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return in.Type.Validate()
}

func (u CategoryUpdate) Validate() error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return ErrEmptyName
	}
	if u.Type != nil {
		return u.Type.Validate()
	}
	return nil
}

func (s Settings) Validate() error {
	if s.Theme != ThemeLight && s.Theme != ThemeDark {
		return ErrInvalidTheme
	}
	if strings.TrimSpace(s.Currency) == "" {
		return ErrEmptyCurrency
	}
	return nil
}

// Settings returns the user's current preferences.
func (u User) Settings() Settings {
	return Settings{Theme: u.Theme, Currency: u.Currency, Language: u.Language}
}

// ToggledTheme returns the theme opposite to the user's current one.
func (u User) ToggledTheme() string {
	if u.Theme == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}
