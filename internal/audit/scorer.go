package audit

import "strings"

// Scorer derives the severity, risk score and compliance tags of an event
// from the resource it concerns.
type Scorer interface {
	Severity(resourceType, resourceName string) Severity
	RiskScore(resourceType, resourceName, userEmail string) int
	ComplianceTags(resourceType, resourceName string) []string
}

// HeuristicScorer is the additive keyword scorer used for access decisions.
type HeuristicScorer struct{}

var _ Scorer = HeuristicScorer{}

func (HeuristicScorer) Severity(resourceType, resourceName string) Severity {
	t, n := normalize(resourceType), normalize(resourceName)
	switch {
	case strings.Contains(n, "prod"):
		return SeverityHigh
	case t == "api_key" && n == "stripe":
		return SeverityHigh
	case t == "database", t == "api_key":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (HeuristicScorer) RiskScore(resourceType, resourceName, userEmail string) int {
	t, n := normalize(resourceType), normalize(resourceName)
	score := 10
	if strings.Contains(n, "production") {
		score += 40
	}
	switch t {
	case "database":
		score += 30
	case "api_key":
		score += 25
	}
	if n == "stripe" {
		score += 35
	}
	if strings.Contains(normalize(userEmail), "intern") {
		score += 20
	}
	return clampScore(score)
}

func (HeuristicScorer) ComplianceTags(resourceType, resourceName string) []string {
	t, n := normalize(resourceType), normalize(resourceName)
	tags := []string{"access_control"}
	if strings.Contains(n, "prod") {
		tags = append(tags, "production_access")
	}
	if t == "database" {
		tags = append(tags, "data_access", "gdpr")
	}
	if t == "api_key" {
		tags = append(tags, "api_security", "credentials")
	}
	if n == "stripe" {
		tags = append(tags, "pci_compliance", "payment_data")
	}
	return tags
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
