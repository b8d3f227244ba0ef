// Package relevance scores discovered resources against a classified intent
// and picks the ones worth sending to the model.
package relevance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/MEKXH/mcpilot/internal/intent"
	"github.com/MEKXH/mcpilot/internal/mcp"
)

// Strategy chooses how scored resources are picked.
type Strategy string

const (
	StrategyPriority Strategy = "priority"
	StrategySemantic Strategy = "semantic"
	StrategyHybrid   Strategy = "hybrid"
)

// Weights of each component in the overall score.
const (
	keywordWeight   = 0.30
	domainWeight    = 0.25
	typeWeight      = 0.25
	priorityWeight  = 0.15
	freshnessWeight = 0.05

	neutral = 0.5
)

// Params controls filtering and selection.
type Params struct {
	MaxResources int
	Strategy     Strategy
	Threshold    float64
	PenaltyStep  float64
	PenaltyCap   float64
	Floor        float64
}

// DefaultParams returns the built-in selection settings.
func DefaultParams() Params {
	return Params{
		MaxResources: 5,
		Strategy:     StrategyHybrid,
		Threshold:    0.35,
		PenaltyStep:  0.1,
		PenaltyCap:   0.3,
		Floor:        0.1,
	}
}

// ParamsFromConfig maps the agent section onto Params.
func ParamsFromConfig(cfg config.AgentConfig) Params {
	return Params{
		MaxResources: cfg.MaxResources,
		Strategy:     Strategy(cfg.SelectionStrategy),
		Threshold:    cfg.RelevanceThreshold,
		PenaltyStep:  cfg.DiversityPenalty,
		PenaltyCap:   cfg.DiversityPenaltyCap,
		Floor:        cfg.DiversityFloor,
	}
}

// Components are the per-resource sub-scores, each in [0,1].
type Components struct {
	Keyword   float64 `json:"keyword"`
	Domain    float64 `json:"domain"`
	Type      float64 `json:"type"`
	Priority  float64 `json:"priority"`
	Freshness float64 `json:"freshness"`
}

func (c Components) total() float64 {
	return keywordWeight*c.Keyword +
		domainWeight*c.Domain +
		typeWeight*c.Type +
		priorityWeight*c.Priority +
		freshnessWeight*c.Freshness
}

func (c Components) semantic() float64 {
	return (c.Keyword + c.Domain + c.Type) / 3
}

// Scored is one resource with its relevance.
type Scored struct {
	Resource   mcp.ServerResource `json:"resource"`
	Score      float64            `json:"score"`
	Components Components         `json:"components"`
	Category   Category           `json:"category"`
	Reasoning  string             `json:"reasoning"`
}

type label struct {
	text   string
	weight float64
}

// Scorer holds the domain and intent-type weight tables.
type Scorer struct {
	domainWeights map[string]float64
	typeLabels    map[intent.Type][]label
}

// NewScorer returns a scorer with the default weight tables.
func NewScorer() *Scorer {
	return &Scorer{
		domainWeights: map[string]float64{
			"blockchain": 1.0,
			"security":   0.9,
			"testing":    0.8,
			"backend":    0.8,
			"frontend":   0.7,
			"devops":     0.7,
		},
		typeLabels: map[intent.Type][]label{
			intent.Coding: {
				{".sol", 0.9}, {".go", 0.9}, {"contract", 0.9}, {".ts", 0.8}, {".js", 0.8}, {".py", 0.8}, {"src", 0.7},
			},
			intent.Documentation: {
				{"readme", 1.0}, {"docs", 0.9}, {".md", 0.8}, {"guide", 0.8}, {"api", 0.6},
			},
			intent.Debugging: {
				{"error", 0.9}, {"debug", 0.9}, {"log", 0.8}, {"trace", 0.8}, {"test", 0.7}, {"config", 0.6},
			},
			intent.Explanation: {
				{"readme", 0.9}, {"docs", 0.9}, {"overview", 0.8}, {"architecture", 0.8}, {".md", 0.7},
			},
			intent.Generation: {
				{"template", 1.0}, {"example", 0.9}, {"scaffold", 0.8}, {"config", 0.6},
			},
			intent.Completion: {
				{".sol", 0.8}, {".go", 0.8}, {".ts", 0.8}, {"interface", 0.7}, {"src", 0.7},
			},
		},
	}
}

// Score rates every resource, drops those below the threshold and returns
// the rest sorted by score. Equal scores order by server, then uri.
func (s *Scorer) Score(resources []mcp.ServerResource, in intent.Intent, p Params) []Scored {
	out := make([]Scored, 0, len(resources))
	for _, r := range resources {
		c := s.components(r.Resource, in)
		score := c.total()
		if score < p.Threshold {
			continue
		}
		out = append(out, Scored{
			Resource:   r,
			Score:      score,
			Components: c,
			Category:   Categorize(r.Resource),
			Reasoning:  reasoning(c),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return lessByOrigin(out[i], out[j])
	})
	return out
}

// Rank scores and then selects with p.Strategy.
func (s *Scorer) Rank(resources []mcp.ServerResource, in intent.Intent, p Params) []Scored {
	return Select(s.Score(resources, in, p), p)
}

func (s *Scorer) components(r mcp.Resource, in intent.Intent) Components {
	text := strings.ToLower(r.Name + " " + r.Description + " " + r.URI)
	return Components{
		Keyword:   keywordMatch(text, in.Keywords),
		Domain:    s.domainRelevance(text, in.Domains),
		Type:      s.typeRelevance(text, in.Type),
		Priority:  priority(r),
		Freshness: neutral,
	}
}

func keywordMatch(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, k := range keywords {
		if strings.Contains(text, strings.ToLower(k)) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// domainRelevance averages the weights of the intent's domains found in text.
// A domain is found when its name or one of its phrases appears.
func (s *Scorer) domainRelevance(text string, domains []string) float64 {
	if len(domains) == 0 {
		return neutral
	}
	sum, n := 0.0, 0
	for _, d := range domains {
		if !domainPresent(text, d) {
			continue
		}
		w, ok := s.domainWeights[d]
		if !ok {
			w = neutral
		}
		sum += w
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func domainPresent(text, domain string) bool {
	if strings.Contains(text, domain) {
		return true
	}
	for _, d := range intent.Domains {
		if d.Name != domain {
			continue
		}
		for _, p := range d.Phrases {
			if strings.Contains(text, p) {
				return true
			}
		}
	}
	return false
}

func (s *Scorer) typeRelevance(text string, t intent.Type) float64 {
	best, found := 0.0, false
	for _, l := range s.typeLabels[t] {
		if strings.Contains(text, l.text) && l.weight > best {
			best, found = l.weight, true
		}
	}
	if !found {
		return neutral
	}
	return best
}

func priority(r mcp.Resource) float64 {
	if r.Annotations == nil || r.Annotations.Priority == nil {
		return neutral
	}
	p := *r.Annotations.Priority / 10
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func reasoning(c Components) string {
	parts := []struct {
		name  string
		value float64
	}{
		{"keyword match", c.Keyword},
		{"domain relevance", c.Domain},
		{"type relevance", c.Type},
		{"priority", c.Priority},
	}
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].value > parts[j].value })

	reasons := make([]string, 0, 2)
	for _, p := range parts {
		if p.value <= neutral || len(reasons) == 2 {
			break
		}
		reasons = append(reasons, fmt.Sprintf("%s %.2f", p.name, p.value))
	}
	if len(reasons) == 0 {
		return "no strong signal"
	}
	return strings.Join(reasons, ", ")
}

func lessByOrigin(a, b Scored) bool {
	if a.Resource.Server != b.Resource.Server {
		return a.Resource.Server < b.Resource.Server
	}
	return a.Resource.URI < b.Resource.URI
}
