package kitchen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTemperature(t *testing.T) {
	for _, s := range []string{"hot", "cold", "room"} {
		temp, err := ParseTemperature(s)
		assert.NoError(t, err)
		assert.Equal(t, Temperature(s), temp)
	}
	_, err := ParseTemperature("frozen")
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = ParseTemperature("")
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestOrderValidate(t *testing.T) {
	valid := Order{ID: "o1", Name: "Soup", Temp: TempHot, Freshness: 300}
	assert.NoError(t, valid.Validate())

	cases := []Order{
		{ID: "", Temp: TempHot, Freshness: 300},
		{ID: "o1", Temp: TempHot, Freshness: 0},
		{ID: "o1", Temp: TempHot, Freshness: -1},
		{ID: "o1", Temp: "lukewarm", Freshness: 300},
	}
	for _, o := range cases {
		assert.ErrorIs(t, o.Validate(), ErrInvalidOrder)
	}
}

func TestIdealZone(t *testing.T) {
	assert.Equal(t, ZoneHeater, Order{Temp: TempHot}.IdealZone())
	assert.Equal(t, ZoneCooler, Order{Temp: TempCold}.IdealZone())
	assert.Equal(t, ZoneShelf, Order{Temp: TempRoom}.IdealZone())
}

func TestDecayRate(t *testing.T) {
	assert.Equal(t, 1.0, Order{Temp: TempHot, Zone: ZoneHeater}.DecayRate())
	assert.Equal(t, 1.0, Order{Temp: TempCold, Zone: ZoneCooler}.DecayRate())
	assert.Equal(t, 1.0, Order{Temp: TempRoom, Zone: ZoneShelf}.DecayRate())
	assert.Equal(t, 2.0, Order{Temp: TempHot, Zone: ZoneShelf}.DecayRate())
	assert.Equal(t, 2.0, Order{Temp: TempCold, Zone: ZoneShelf}.DecayRate())
}

func TestRemainingLife(t *testing.T) {
	o := Order{Temp: TempCold, Zone: ZoneShelf, Freshness: 10, StoredAt: 0}
	assert.InDelta(t, 10, o.RemainingLife(0), 1e-9)
	assert.InDelta(t, 2, o.RemainingLife(4), 1e-9)
	assert.True(t, o.Fresh(4))
	assert.InDelta(t, -2, o.RemainingLife(6), 1e-9)
	assert.False(t, o.Fresh(6))

	o.Zone = ZoneCooler
	assert.InDelta(t, 6, o.RemainingLife(4), 1e-9)
}
