package pricing

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAllocate_QuotedSubTotalsMatch(t *testing.T) {
	got, err := Allocate(dec("1000.00"), dec("650.00"), dec("350.00"), dec("50.00"), dec("0"), dec("97.50"), dec("52.50"))
	require.NoError(t, err)

	assert.True(t, got.Flight.Equal(dec("650.00")), "flight = %s", got.Flight)
	assert.True(t, got.Hotel.Equal(dec("350.00")), "hotel = %s", got.Hotel)
	assert.True(t, got.Commission.Equal(dec("50.00")))
}

func TestAllocate_RemainderGoesToFlight(t *testing.T) {
	// Re-verified total dropped a cent: the flight leg absorbs it.
	got, err := Allocate(dec("999.99"), dec("650.00"), dec("350.00"), dec("0"), dec("0"), dec("0"), dec("0"))
	require.NoError(t, err)

	assert.True(t, got.Flight.Equal(dec("649.99")), "flight = %s", got.Flight)
	assert.True(t, got.Hotel.Equal(dec("350.00")), "hotel = %s", got.Hotel)
	assert.True(t, got.Flight.Add(got.Hotel).Equal(dec("999.99")))
}

func TestAllocate_SingleLeg(t *testing.T) {
	tests := []struct {
		name         string
		flightQuoted string
		hotelQuoted  string
		wantFlight   string
		wantHotel    string
	}{
		{name: "flight only", flightQuoted: "420.00", hotelQuoted: "0", wantFlight: "500.00", wantHotel: "0"},
		{name: "hotel only", flightQuoted: "0", hotelQuoted: "180.00", wantFlight: "0", wantHotel: "500.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Allocate(dec("500.00"), dec(tt.flightQuoted), dec(tt.hotelQuoted), dec("0"), dec("0"), dec("0"), dec("0"))
			require.NoError(t, err)

			assert.True(t, got.Flight.Equal(dec(tt.wantFlight)), "flight = %s", got.Flight)
			assert.True(t, got.Hotel.Equal(dec(tt.wantHotel)), "hotel = %s", got.Hotel)
		})
	}
}

func TestAllocate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		total  string
		flight string
		hotel  string
	}{
		{name: "zero total", total: "0", flight: "100", hotel: "100"},
		{name: "negative total", total: "-1", flight: "100", hotel: "100"},
		{name: "negative leg", total: "100", flight: "-1", hotel: "100"},
		{name: "no quoted legs", total: "100", flight: "0", hotel: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Allocate(dec(tt.total), dec(tt.flight), dec(tt.hotel), dec("0"), dec("0"), dec("0"), dec("0"))
			assert.Error(t, err)
		})
	}
}

// The per-leg amounts must sum to the total exactly for any inputs,
// otherwise refund math drifts.
func TestAllocate_SumIsExact(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		total := decimal.NewFromInt(r.Int63n(1_000_000) + 1).Div(decimal.NewFromInt(100))
		flightQuoted := decimal.NewFromInt(r.Int63n(500_000) + 1).Div(decimal.NewFromInt(100))
		hotelQuoted := decimal.NewFromInt(r.Int63n(500_000) + 1).Div(decimal.NewFromInt(100))

		got, err := Allocate(total, flightQuoted, hotelQuoted, dec("0"), dec("0"), dec("0"), dec("0"))
		require.NoError(t, err)

		sum := got.Flight.Add(got.Hotel)
		require.True(t, sum.Equal(total), fmt.Sprintf(
			"total=%s flight_quoted=%s hotel_quoted=%s: %s + %s = %s",
			total, flightQuoted, hotelQuoted, got.Flight, got.Hotel, sum,
		))

		// Drift never exceeds one minor unit on the flight leg.
		proportional := total.Mul(flightQuoted).Div(flightQuoted.Add(hotelQuoted))
		drift := got.Flight.Sub(proportional).Abs()
		require.True(t, drift.LessThanOrEqual(dec("0.01")), "drift = %s", drift)
	}
}
