// Package pricing splits a verified package total into per-leg amounts.
//
// Suppliers quote flight and hotel prices independently, so a package's
// verified total rarely comes with authoritative sub-totals. The allocator
// distributes the total proportionally over the quoted leg prices and
// absorbs any rounding drift into the flight leg, so that the per-leg
// amounts always sum to the total exactly. Refund math depends on that.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type PerLegAmounts struct {
	Flight decimal.Decimal
	Hotel  decimal.Decimal

	FlightTaxes decimal.Decimal
	HotelTaxes  decimal.Decimal

	Commission decimal.Decimal
	Discount   decimal.Decimal
}

// Allocate splits total over the two legs proportionally to their quoted
// prices, with banker's rounding to 2 places. When the quoted prices
// already sum to the total they are used as-is. The flight leg absorbs
// the rounding remainder, deterministically.
func Allocate(
	total decimal.Decimal,
	flightQuoted decimal.Decimal,
	hotelQuoted decimal.Decimal,
	commission decimal.Decimal,
	discount decimal.Decimal,
	taxesFlight decimal.Decimal,
	taxesHotel decimal.Decimal,
) (PerLegAmounts, error) {
	if !total.IsPositive() {
		return PerLegAmounts{}, fmt.Errorf("total must be positive, got %s", total)
	}
	if flightQuoted.IsNegative() || hotelQuoted.IsNegative() {
		return PerLegAmounts{}, fmt.Errorf("quoted leg prices must not be negative")
	}
	if commission.IsNegative() || discount.IsNegative() || taxesFlight.IsNegative() || taxesHotel.IsNegative() {
		return PerLegAmounts{}, fmt.Errorf("commission, discount and taxes must not be negative")
	}

	quotedSum := flightQuoted.Add(hotelQuoted)
	if quotedSum.IsZero() {
		return PerLegAmounts{}, fmt.Errorf("at least one leg must have a quoted price")
	}

	// Verified totals are already expressed in the currency's minor unit.
	total = total.RoundBank(2)

	result := PerLegAmounts{
		FlightTaxes: taxesFlight.RoundBank(2),
		HotelTaxes:  taxesHotel.RoundBank(2),
		Commission:  commission.RoundBank(2),
		Discount:    discount.RoundBank(2),
	}

	switch {
	case hotelQuoted.IsZero():
		result.Flight = total.RoundBank(2)
	case flightQuoted.IsZero():
		result.Hotel = total.RoundBank(2)
	case quotedSum.Equal(total):
		// Supplier-quoted sub-totals are authoritative when consistent.
		result.Hotel = hotelQuoted.RoundBank(2)
		result.Flight = total.Sub(result.Hotel)
	default:
		result.Hotel = total.Mul(hotelQuoted).Div(quotedSum).RoundBank(2)
		result.Flight = total.Sub(result.Hotel)
	}

	if !result.Flight.Add(result.Hotel).Equal(total) {
		return PerLegAmounts{}, fmt.Errorf(
			"allocation drift: %s + %s != %s",
			result.Flight, result.Hotel, total,
		)
	}

	return result, nil
}
