// Package intent classifies a user query into what the user is trying to do.
// Classification is pure: the same query always yields the same Intent.
package intent

import (
	"regexp"
	"strings"
	"unicode"
)

// Type is one of the six query intents.
type Type string

const (
	Coding        Type = "coding"
	Documentation Type = "documentation"
	Debugging     Type = "debugging"
	Explanation   Type = "explanation"
	Generation    Type = "generation"
	Completion    Type = "completion"
)

// Complexity estimates how much work a query asks for.
type Complexity string

const (
	Low    Complexity = "low"
	Medium Complexity = "medium"
	High   Complexity = "high"
)

// Intent is the result of classifying a query.
type Intent struct {
	Query      string     `json:"query"`
	Type       Type       `json:"type"`
	Confidence float64    `json:"confidence"`
	Keywords   []string   `json:"keywords"`
	Domains    []string   `json:"domains"`
	Complexity Complexity `json:"complexity"`
}

type rule struct {
	intent   Type
	patterns []*regexp.Regexp
}

// Declaration order breaks ties.
var rules = []rule{
	{Coding, compile(
		`\b(implement|write|add|modify|update|change)\b.*\b(function|method|class|code|contract|module|handler)\b`,
		`\b(refactor|optimi[sz]e|rename|extract)\b`,
		`\bhow (do|can|should) i (write|implement|code|call)\b`,
	)},
	{Documentation, compile(
		`\b(document|documentation|docs?|readme)\b`,
		`\b(comments?|docstrings?|natspec|jsdoc)\b`,
		`\b(guide|tutorial|changelog)\b`,
	)},
	{Debugging, compile(
		`\b(error|errors|bug|bugs|issue|exception|panic|crash(es|ed|ing)?)\b`,
		`\b(fail(s|ed|ing|ure)?|broken|not working|doesn'?t work|revert(s|ed|ing)?)\b`,
		`\b(fix|debug|troubleshoot|diagnose)\b`,
	)},
	{Explanation, compile(
		`\b(what|why|how) (is|are|does|do)\b`,
		`\b(explain|describe|understand|meaning|difference)\b`,
	)},
	{Generation, compile(
		`\b(generate|scaffold|boilerplate|template)\b`,
		`\b(create|make|build) (a|an|new|the)\b`,
		`\bnew (project|contract|component|service|file)\b`,
	)},
	{Completion, compile(
		`\b(complete|finish|continue)\b`,
		`\b(autocomplete|fill in|rest of)\b`,
	)},
}

// Checked in order; the first bucket with a match wins.
var complexityRules = []struct {
	level    Complexity
	patterns []*regexp.Regexp
}{
	{Low, compile(`\b(simple|quick|basic|small|typo|one[- ]liner)\b`)},
	{Medium, compile(`\b(add|update|modify|change|refactor|implement)\b`)},
	{High, compile(`\b(architecture|redesign|migrat(e|ion)|security|audit|scal(e|ing|ability)|entire|whole)\b`)},
}

// Domains maps a domain to the phrases that indicate it.
var Domains = []struct {
	Name    string
	Phrases []string
}{
	{"blockchain", []string{"smart contract", "contract", "solidity", "gas", "ethereum", "token", "erc20", "erc721", "wallet", "transaction", "abi", "hardhat", "foundry"}},
	{"frontend", []string{"react", "component", "css", "html", "frontend", "browser"}},
	{"backend", []string{"api", "server", "endpoint", "backend", "database", "sql"}},
	{"testing", []string{"test", "tests", "unit test", "coverage", "mock", "fixture"}},
	{"devops", []string{"docker", "deploy", "deployment", "pipeline", "kubernetes", "ci"}},
	{"security", []string{"security", "vulnerability", "reentrancy", "overflow", "access control"}},
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "from": {}, "into": {},
	"are": {}, "was": {}, "were": {}, "has": {}, "have": {}, "had": {}, "can": {}, "could": {},
	"should": {}, "would": {}, "will": {}, "how": {}, "what": {}, "why": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "you": {}, "your": {}, "our": {}, "its": {}, "not": {}, "but": {},
	"does": {}, "did": {}, "doing": {}, "please": {}, "about": {}, "there": {}, "their": {},
	"them": {}, "then": {}, "than": {}, "some": {}, "any": {}, "all": {}, "get": {}, "got": {},
	"my": {}, "me": {}, "is": {}, "it": {}, "in": {}, "on": {}, "to": {}, "of": {}, "a": {}, "an": {},
}

var phrasePatterns = map[string]*regexp.Regexp{}

func init() {
	for _, d := range Domains {
		for _, p := range d.Phrases {
			phrasePatterns[p] = regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `\b`)
		}
	}
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Classify returns the intent of query.
func Classify(query string) Intent {
	q := strings.ToLower(strings.TrimSpace(query))

	best, bestMatched, bestTotal := Explanation, 0, 0
	for _, r := range rules {
		matched := 0
		for _, p := range r.patterns {
			if p.MatchString(q) {
				matched++
			}
		}
		if matched > bestMatched {
			best, bestMatched, bestTotal = r.intent, matched, len(r.patterns)
		}
	}

	confidence := 0.3
	if bestMatched > 0 {
		confidence = float64(bestMatched) / float64(bestTotal)
	}
	if strings.Contains(q, "?") {
		confidence += 0.1
	}
	if len(q) > 10 {
		confidence += 0.1
	}
	if len(q) > 50 {
		confidence += 0.1
	}
	if confidence > 1 {
		confidence = 1
	}

	return Intent{
		Query:      query,
		Type:       best,
		Confidence: confidence,
		Keywords:   keywords(q),
		Domains:    domains(q),
		Complexity: complexity(q),
	}
}

func keywords(q string) []string {
	seen := map[string]bool{}
	out := []string{}
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}

	tokens := strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})
	for _, tok := range tokens {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		add(tok)
	}
	for _, d := range Domains {
		for _, p := range d.Phrases {
			if phrasePatterns[p].MatchString(q) {
				add(p)
			}
		}
	}
	return out
}

func domains(q string) []string {
	out := []string{}
	for _, d := range Domains {
		for _, p := range d.Phrases {
			if phrasePatterns[p].MatchString(q) {
				out = append(out, d.Name)
				break
			}
		}
	}
	return out
}

func complexity(q string) Complexity {
	for _, c := range complexityRules {
		for _, p := range c.patterns {
			if p.MatchString(q) {
				return c.level
			}
		}
	}
	switch {
	case len(q) < 20:
		return Low
	case len(q) < 100:
		return Medium
	default:
		return High
	}
}
