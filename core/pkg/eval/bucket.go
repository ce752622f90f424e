package eval

import "github.com/open-feature/flagx/core/pkg/model"

// Bucket maps identity and flagID to a stable integer in [0,99].
//
// The hash is a 32-bit rolling fold (h = h*31 + c). It is fast and repeatable,
// and it is not resistant to adversarially chosen identities.
func Bucket(identity, flagID string) int {
	var h int32
	for _, c := range identity + ":" + flagID {
		h = (h << 5) - h + int32(c)
	}
	b := int(h % 100)
	if b < 0 {
		b = -b
	}
	return b
}

// SelectVariant walks variants in declared order accumulating weight and returns
// the first whose cumulative weight exceeds bucket. When the weights never exceed
// the bucket the first declared variant is used.
func SelectVariant(variants []model.Variant, bucket int) (model.Variant, bool) {
	if len(variants) == 0 {
		return model.Variant{}, false
	}
	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.Weight
		if cumulative > float64(bucket) {
			return v, true
		}
	}
	return variants[0], true
}
