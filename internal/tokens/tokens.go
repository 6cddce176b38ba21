// Package tokens provides the character-based token estimate used for all
// context budget arithmetic. English text averages roughly four characters
// per model token; billing-accurate counts are out of scope.
package tokens

// Estimate returns ceil(len(s)/4).
func Estimate(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + 3) / 4
}

// EstimateAll sums the estimates for each string.
func EstimateAll(parts []string) int {
	total := 0
	for _, p := range parts {
		total += Estimate(p)
	}
	return total
}
