package config

import (
	"reflect"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"fairplay/internal/money"
)

var parsers = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(decimal.Decimal{}): func(v string) (any, error) {
		return decimal.NewFromString(v)
	},
	reflect.TypeOf(money.Amount(0)): func(v string) (any, error) {
		return money.ParseAmount(v)
	},
}
