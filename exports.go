package reckon

import (
	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// LineItem is re-exported from calc package.
type LineItem = calc.LineItem

// Discount is re-exported from calc package.
type Discount = calc.Discount

// Re-export Money constructors
var (
	NewMoney   = types.New
	ParseMoney = types.Parse
	Zero       = types.Zero
	Sum        = types.Sum
)
