// README: Pricing rates for blood units.
package pricing

// Rate holds the per-unit multiplier set for one blood group.
type Rate struct {
	BloodGroup string
	Multiplier float64
}

// basePricePerUnit is the INR price of one common-group whole-blood unit.
const basePricePerUnit = 1200

// defaultMultipliers reflect group rarity; positive groups are common.
var defaultMultipliers = map[string]float64{
	"O-":  2.5,
	"AB-": 2.0,
	"B-":  1.5,
	"A-":  1.5,
}

// componentAdjustments apply on top of the rarity multiplier.
var componentAdjustments = map[string]float64{
	"Plasma":    1.2,
	"Platelets": 1.5,
}
