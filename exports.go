package patron

import (
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Period is re-exported from period package.
type Period = period.Period

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	GBP  = types.GBP
	Zero = types.Zero
	Sum  = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity

// Re-export Period helpers
var (
	ParsePeriod   = period.Parse
	CurrentPeriod = period.Current
)
