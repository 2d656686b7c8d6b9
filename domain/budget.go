package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"secret-santa/errors"
)

// Budget is the gift price cap of a room, in rubles.
type Budget int

// AllowedBudgets is the fixed set offered to organizers.
var AllowedBudgets = []Budget{500, 750, 1000, 1250, 1500, 2500}

// NewBudget accepts only the enumerated amounts.
func NewBudget(amount int) (Budget, error) {
	b := Budget(amount)
	if !slices.Contains(AllowedBudgets, b) {
		return 0, errors.ErrInvalidBudget
	}
	return b, nil
}

// ParseBudget reads a budget from a button payload or typed text.
func ParseBudget(raw string) (Budget, error) {
	amount, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.ErrInvalidBudget
	}
	return NewBudget(amount)
}

func (b Budget) String() string {
	return fmt.Sprintf("%d RUB", int(b))
}
