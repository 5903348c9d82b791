package ingredient

// RiskLevel 風險等級
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// highRiskThreshold 達到此數量的標記即為高風險
const highRiskThreshold = 4

// Score 只依標記數量決定風險等級：0 為 low，1 到 3 為 medium，4 以上為 high
func Score(flags []string) RiskLevel {
	switch n := len(flags); {
	case n == 0:
		return RiskLow
	case n >= highRiskThreshold:
		return RiskHigh
	default:
		return RiskMedium
	}
}

// Valid 是否為已知的等級
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}
