// Package guard implements the intake stage: sensitive-data detection with
// checksum confirmation, query masking, and topical scope classification.
package guard

import (
	"regexp"
	"sort"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// pattern pairs a finding kind with its surface matcher. Bare digit runs are
// mapped to the checksum-bearing kind they could encode, so a random 11-digit
// number is only reported when its check digits actually validate.
type pattern struct {
	kind     domain.FindingKind
	re       *regexp.Regexp
	checksum func(string) bool
}

var piiPatterns = []pattern{
	{domain.FindingCPF, regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`), validCPF},
	{domain.FindingCNPJ, regexp.MustCompile(`\b\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}\b`), validCNPJ},
	{domain.FindingCPF, regexp.MustCompile(`\b\d{11}\b`), validCPF},
	{domain.FindingCNPJ, regexp.MustCompile(`\b\d{14}\b`), validCNPJ},
	{domain.FindingEmail, regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`), nil},
	{domain.FindingPhone, regexp.MustCompile(`\b\+?\d{2}\s?\(?\d{2}\)?\s?\d{4,5}-?\d{4}\b`), nil},
	{domain.FindingCaseNumber, regexp.MustCompile(`\b\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}\b`), nil},
}

// Detector finds sensitive-data occurrences and assigns severity from a
// configured policy table.
type Detector struct {
	severity  map[string]string
	maskToken string
}

// NewDetector creates a detector with the given kind -> severity policy and
// masking token.
func NewDetector(severity map[string]string, maskToken string) *Detector {
	return &Detector{severity: severity, maskToken: maskToken}
}

// Find returns all confirmed findings in text, ordered by start offset.
// Surface matches of checksum-bearing kinds whose check digits fail are
// discarded, not reported.
func (d *Detector) Find(text string) []domain.Finding {
	var findings []domain.Finding
	for _, p := range piiPatterns {
		for _, span := range p.re.FindAllStringIndex(text, -1) {
			value := text[span[0]:span[1]]
			if p.checksum != nil && !p.checksum(value) {
				continue
			}
			findings = append(findings, domain.Finding{
				Kind:      p.kind,
				Value:     value,
				Start:     span[0],
				End:       span[1],
				Confirmed: true,
				Severity:  d.severityFor(p.kind),
			})
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Start < findings[j].Start })
	return findings
}

// Mask replaces every confirmed finding span with the mask token. The cleaned
// text is what downstream stages and external services are allowed to see.
// Overlapping findings are merged first, so no fragment of either survives.
func (d *Detector) Mask(text string, findings []domain.Finding) string {
	if len(findings) == 0 {
		return text
	}

	type span struct{ start, end int }
	spans := make([]span, 0, len(findings))
	for _, f := range findings {
		spans = append(spans, span{f.Start, f.End})
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})

	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	// Replace back to front so earlier offsets stay valid.
	masked := text
	for i := len(merged) - 1; i >= 0; i-- {
		masked = masked[:merged[i].start] + d.maskToken + masked[merged[i].end:]
	}
	return masked
}

// severityFor resolves the policy entry for a kind. Kinds missing from the
// table block: failing closed is the only safe default for personal data.
func (d *Detector) severityFor(kind domain.FindingKind) domain.Severity {
	if sev, ok := d.severity[string(kind)]; ok {
		return domain.Severity(sev)
	}
	return domain.SeverityBlock
}

// validCPF checks the two mod-11 check digits of a Brazilian CPF.
func validCPF(value string) bool {
	digits := onlyDigits(value)
	if len(digits) != 11 || allSame(digits) {
		return false
	}

	s := 0
	for i := 0; i < 9; i++ {
		s += int(digits[i]-'0') * (10 - i)
	}
	if (s*10%11)%10 != int(digits[9]-'0') {
		return false
	}

	s = 0
	for i := 0; i < 10; i++ {
		s += int(digits[i]-'0') * (11 - i)
	}
	return (s*10%11)%10 == int(digits[10]-'0')
}

var (
	cnpjWeightsFirst  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeightsSecond = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// validCNPJ checks the two mod-11 check digits of a Brazilian CNPJ.
func validCNPJ(value string) bool {
	digits := onlyDigits(value)
	if len(digits) != 14 {
		return false
	}

	if cnpjDigit(digits[:12], cnpjWeightsFirst) != int(digits[12]-'0') {
		return false
	}
	return cnpjDigit(digits[:13], cnpjWeightsSecond) == int(digits[13]-'0')
}

func cnpjDigit(digits string, weights []int) int {
	s := 0
	for i := range digits {
		s += int(digits[i]-'0') * weights[i]
	}
	r := s % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func onlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
