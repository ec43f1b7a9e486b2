package battery

import (
	"testing"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/stretchr/testify/assert"
)

func testPack() *goconfig.BatteryPack {
	return &goconfig.BatteryPack{
		CellCount: 2,
		Type: &goconfig.BatteryType{
			Chemistry:  "test",
			MinVoltage: 3.0,
			MaxVoltage: 4.2,
			Voltages:   []float32{3.0, 3.6, 4.2},
			Percent:    []float32{0, 50, 100},
		},
	}
}

func TestPercentInterpolation(t *testing.T) {
	pack := testPack()

	// 2 cells: pack voltage halves to the per-cell curve.
	assert.Equal(t, float32(0), Percent(pack, 6.0))
	assert.Equal(t, float32(50), Percent(pack, 7.2))
	assert.Equal(t, float32(100), Percent(pack, 8.4))
	assert.InDelta(t, 25, Percent(pack, 6.6), 0.01)
	assert.InDelta(t, 75, Percent(pack, 7.8), 0.01)
}

func TestPercentClampsOutsideCurve(t *testing.T) {
	pack := testPack()
	assert.Equal(t, float32(0), Percent(pack, 1.0))
	assert.Equal(t, float32(100), Percent(pack, 12.0))
}

func TestPercentUnknownPack(t *testing.T) {
	assert.Equal(t, float32(-1), Percent(nil, 12))
	assert.Equal(t, float32(-1), Percent(&goconfig.BatteryPack{CellCount: 1}, 12))

	bad := testPack()
	bad.Type.Percent = bad.Type.Percent[:2]
	assert.Equal(t, float32(-1), Percent(bad, 7))
}
