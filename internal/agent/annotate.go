package agent

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"
)

// domainWeights ranks knowledge domains; heavier domains are listed first.
var domainWeights = map[string]int{
	"internet_web":     100000,
	"mathematics":      10000,
	"computer_science": 10000,
	"sci_fi":           5000,
	"physics":          1000,
	"chemistry":        500,
	"biology":          100,
}

var domainKeywords = []struct {
	domain   string
	keywords []string
}{
	{"physics", []string{"physics", "force", "energy", "motion"}},
	{"mathematics", []string{"math", "calculate", "equation", "number"}},
	{"computer_science", []string{"ai", "neural", "algorithm", "computer"}},
	{"chemistry", []string{"chemical", "molecule", "reaction", "chemistry"}},
	{"biology", []string{"biology", "cell", "organism", "dna"}},
	{"sci_fi", []string{"sci-fi", "warp", "spacecraft", "future"}},
	{"internet_web", []string{"internet", "web", "online", "data"}},
}

var domainCalculations = map[string]string{
	"mathematics":      "Mathematical analysis: Applied relevant formulas and numerical methods",
	"physics":          "Physics simulation: Calculated forces, energy, and motion parameters",
	"computer_science": "Algorithmic analysis: Evaluated computational complexity and optimization",
	"chemistry":        "Chemical modeling: Analyzed molecular interactions and reactions",
	"biology":          "Biological modeling: Examined cellular and systemic processes",
	"sci_fi":           "Speculative analysis: Explored theoretical possibilities and future concepts",
	"internet_web":     "Data analysis: Processed and analyzed relevant information patterns",
}

// DetectDomains returns the knowledge domains a message touches, heaviest
// first. Messages matching nothing are filed under computer_science.
func DetectDomains(message string) []string {
	lower := strings.ToLower(message)
	var domains []string
	for _, entry := range domainKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				domains = append(domains, entry.domain)
				break
			}
		}
	}
	if len(domains) == 0 {
		return []string{"computer_science"}
	}
	slices.SortStableFunc(domains, func(a, b string) int {
		return cmp.Compare(domainWeights[b], domainWeights[a])
	})
	return domains
}

// Annotate fills in domains and calculations on a reply that has none.
func Annotate(message string, reply *Reply) {
	if len(reply.Domains) > 0 || len(reply.Calculations) > 0 {
		return
	}
	domains := DetectDomains(message)
	calculations := make(map[string]string, len(domains))
	for _, d := range domains {
		calculations[d] = domainCalculations[d]
	}
	// Both values are plain strings; marshaling cannot fail.
	reply.Domains, _ = json.Marshal(domains)
	reply.Calculations, _ = json.Marshal(calculations)
}
