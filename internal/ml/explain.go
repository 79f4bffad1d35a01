package ml

import (
	"fmt"
	"sort"
	"strings"
)

// TreeNode is one node of a regression tree in the contribution dump.
// Internal nodes split on Feature at Threshold; leaves carry Feature -1.
// Children always have larger indices than their parent.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a single regression tree with the root at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeEnsemble is the contribution-capable sub-model exported by the
// training pipeline: one boosted tree list per class, ordered like the
// bundle's class list.
type TreeEnsemble struct {
	ClassTrees [][]Tree `json:"classTrees"`
}

// Explainer attributes a prediction to individual features by walking
// the decision path of every tree and summing the value deltas along
// each split. Contributions are additive per feature; the base value is
// the expected class margin, taken over the bundle's background sample
// when one exists and over the tree roots otherwise.
type Explainer struct {
	trees [][]Tree
	base  []float64
	dim   int
}

// NewExplainer validates the tree dump and precomputes per-class base
// values. Construction failure leaves the bundle serving predictions
// without explanations.
func NewExplainer(ensemble *TreeEnsemble, background [][]float64, dim, classes int) (*Explainer, error) {
	if ensemble == nil || len(ensemble.ClassTrees) == 0 {
		return nil, fmt.Errorf("no contribution trees in bundle")
	}
	if len(ensemble.ClassTrees) != classes {
		return nil, fmt.Errorf("tree dump covers %d classes, bundle has %d", len(ensemble.ClassTrees), classes)
	}
	for c, trees := range ensemble.ClassTrees {
		for ti, tree := range trees {
			if err := validateTree(tree, dim); err != nil {
				return nil, fmt.Errorf("class %d tree %d: %w", c, ti, err)
			}
		}
	}

	e := &Explainer{trees: ensemble.ClassTrees, dim: dim}
	e.base = e.baseValues(background)
	return e, nil
}

func validateTree(tree Tree, dim int) error {
	if len(tree.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range tree.Nodes {
		if n.Feature < 0 {
			continue // leaf
		}
		if n.Feature >= dim {
			return fmt.Errorf("node %d splits on feature %d, model has %d", i, n.Feature, dim)
		}
		if n.Left <= i || n.Left >= len(tree.Nodes) || n.Right <= i || n.Right >= len(tree.Nodes) {
			return fmt.Errorf("node %d has children %d/%d outside (%d, %d)", i, n.Left, n.Right, i, len(tree.Nodes))
		}
	}
	return nil
}

// baseValues computes the per-class expected margin.
func (e *Explainer) baseValues(background [][]float64) []float64 {
	base := make([]float64, len(e.trees))
	if len(background) == 0 {
		for c, trees := range e.trees {
			for _, tree := range trees {
				base[c] += tree.Nodes[0].Value
			}
		}
		return base
	}
	for c := range e.trees {
		sum := 0.0
		for _, row := range background {
			sum += e.margin(row, c)
		}
		base[c] = sum / float64(len(background))
	}
	return base
}

// margin is the raw class score: the sum of the leaf values reached by
// the vector across the class's trees.
func (e *Explainer) margin(scaled []float64, class int) float64 {
	total := 0.0
	for _, tree := range e.trees[class] {
		node := 0
		for tree.Nodes[node].Feature >= 0 {
			n := tree.Nodes[node]
			if scaled[n.Feature] <= n.Threshold {
				node = n.Left
			} else {
				node = n.Right
			}
		}
		total += tree.Nodes[node].Value
	}
	return total
}

// Contributions returns per-feature attributions for the given class
// along with the class base value.
func (e *Explainer) Contributions(scaled []float64, class int) ([]float64, float64, error) {
	if class < 0 || class >= len(e.trees) {
		return nil, 0, fmt.Errorf("class index %d outside %d explained classes", class, len(e.trees))
	}
	if len(scaled) != e.dim {
		return nil, 0, fmt.Errorf("%w: explainer expects %d features, got %d", ErrFeatureCountMismatch, e.dim, len(scaled))
	}

	contribs := make([]float64, e.dim)
	for _, tree := range e.trees[class] {
		node := 0
		for tree.Nodes[node].Feature >= 0 {
			n := tree.Nodes[node]
			child := n.Left
			if scaled[n.Feature] > n.Threshold {
				child = n.Right
			}
			contribs[n.Feature] += tree.Nodes[child].Value - n.Value
			node = child
		}
	}
	return contribs, e.base[class], nil
}

// Explanation is one ranked, rendered contribution entry.
type Explanation struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
	Text         string  `json:"text"`
	Direction    string  `json:"direction"`
}

// RankContributions pairs feature names with contribution values and
// renders the capped evidence list: the strongest positive contributors
// as supporting evidence followed by the strongest negative ones as
// confidence reducers, at most six lines in total.
func RankContributions(names []string, contributions []float64) []Explanation {
	n := len(names)
	if len(contributions) < n {
		n = len(contributions)
	}

	type pair struct {
		name  string
		value float64
	}
	pairs := make([]pair, n)
	for i := 0; i < n; i++ {
		pairs[i] = pair{name: names[i], value: contributions[i]}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].value > pairs[j].value
	})

	supports := make([]Explanation, 0, 6)
	for _, p := range pairs {
		if p.value <= 0 {
			continue
		}
		direction := signalForFeature(p.name)
		supports = append(supports, Explanation{
			Feature:      p.name,
			Contribution: p.value,
			Text:         fmt.Sprintf("%s contributes +%.3f — supports %s", p.name, p.value, direction),
			Direction:    direction,
		})
		if len(supports) == 6 {
			break
		}
	}

	var negatives []pair
	for _, p := range pairs {
		if p.value < 0 {
			negatives = append(negatives, p)
		}
	}
	if len(negatives) > 3 {
		negatives = negatives[len(negatives)-3:]
	}

	reducers := make([]Explanation, 0, len(negatives))
	for _, p := range negatives {
		reducers = append(reducers, Explanation{
			Feature:      p.name,
			Contribution: p.value,
			Text:         fmt.Sprintf("%s contributes %.3f — reduces confidence", p.name, p.value),
			Direction:    signalForFeature(p.name),
		})
	}

	combined := append(supports, reducers...)
	if len(combined) > 6 {
		combined = combined[:6]
	}
	return combined
}

// signalForFeature infers the directional tag a feature argues for from
// its name. The mapping is domain-specific and consulted only by the
// rendered text, never by the prediction itself.
func signalForFeature(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "rsi") || strings.Contains(n, "oversold"):
		return "LONG"
	case strings.Contains(n, "overbought"):
		return "SHORT"
	case strings.Contains(n, "imbalance") && strings.Contains(n, "buy"):
		return "LONG"
	case strings.Contains(n, "imbalance") && strings.Contains(n, "sell"):
		return "SHORT"
	default:
		return "signal"
	}
}
