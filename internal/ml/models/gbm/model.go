package gbm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"shelfcast/internal/domain"
	"shelfcast/internal/ml/common"
)

// TrainOptions controls gradient boosting of squared-loss regression trees.
type TrainOptions struct {
	Rounds         int     `json:"rounds"`
	LearningRate   float64 `json:"learning_rate"`
	MaxDepth       int     `json:"max_depth"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	Subsample      float64 `json:"subsample"`
	Lambda         float64 `json:"lambda"`
	Seed           int64   `json:"seed"`
}

// DefaultTrainOptions is the leaf-wise flavored profile served as "lgbm".
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Rounds:         120,
		LearningRate:   0.1,
		MaxDepth:       5,
		MinSamplesLeaf: 10,
		Subsample:      0.8,
		Lambda:         0,
		Seed:           42,
	}
}

// XGBTrainOptions is the shallower, L2-regularized profile served as "xgb".
func XGBTrainOptions() TrainOptions {
	return TrainOptions{
		Rounds:         150,
		LearningRate:   0.08,
		MaxDepth:       4,
		MinSamplesLeaf: 5,
		Subsample:      1,
		Lambda:         1,
		Seed:           7,
	}
}

func (o TrainOptions) withDefaults() TrainOptions {
	d := DefaultTrainOptions()
	if o.Rounds <= 0 {
		o.Rounds = d.Rounds
	}
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MinSamplesLeaf <= 0 {
		o.MinSamplesLeaf = 1
	}
	if o.Subsample <= 0 || o.Subsample > 1 {
		o.Subsample = 1
	}
	if o.Lambda < 0 {
		o.Lambda = 0
	}
	return o
}

type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf,omitempty"`
}

type tree []node

func (t tree) predict(x []float64) float64 {
	i := 0
	for !t[i].Leaf {
		if x[t[i].Feature] <= t[i].Threshold {
			i = t[i].Left
		} else {
			i = t[i].Right
		}
	}
	return t[i].Value
}

type artifact struct {
	FeatureNames []string     `json:"feature_names"`
	BaseScore    float64      `json:"base_score"`
	LearningRate float64      `json:"learning_rate"`
	Trees        []tree       `json:"trees"`
	Options      TrainOptions `json:"options"`
}

type Model struct {
	artifact artifact
}

// Train fits a boosted ensemble to samples, whose columns follow featureNames.
func Train(samples [][]float64, labels []float64, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, errors.New("invalid training dataset")
	}
	width := len(samples[0])
	if width == 0 {
		return nil, errors.New("empty feature vectors")
	}
	if len(featureNames) != width {
		return nil, fmt.Errorf("feature names (%d) do not match vector width (%d)", len(featureNames), width)
	}
	for i := range samples {
		if len(samples[i]) != width {
			return nil, fmt.Errorf("sample %d has %d features, want %d", i, len(samples[i]), width)
		}
	}
	opts = opts.withDefaults()

	base := 0.0
	for _, y := range labels {
		base += y
	}
	base /= float64(len(labels))

	pred := make([]float64, len(labels))
	for i := range pred {
		pred[i] = base
	}
	residuals := make([]float64, len(labels))
	rng := rand.New(rand.NewSource(opts.Seed))
	b := &builder{samples: samples, residuals: residuals, opts: opts}

	trees := make([]tree, 0, opts.Rounds)
	for round := 0; round < opts.Rounds; round++ {
		for i := range residuals {
			residuals[i] = labels[i] - pred[i]
		}
		rows := b.sampleRows(rng)
		t := b.build(rows)
		for i := range pred {
			pred[i] += opts.LearningRate * t.predict(samples[i])
		}
		trees = append(trees, t)
	}

	return &Model{artifact: artifact{
		FeatureNames: append([]string(nil), featureNames...),
		BaseScore:    base,
		LearningRate: opts.LearningRate,
		Trees:        trees,
		Options:      opts,
	}}, nil
}

type builder struct {
	samples   [][]float64
	residuals []float64
	opts      TrainOptions
	nodes     tree
}

func (b *builder) sampleRows(rng *rand.Rand) []int {
	rows := make([]int, 0, len(b.samples))
	for i := range b.samples {
		if b.opts.Subsample >= 1 || rng.Float64() < b.opts.Subsample {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rng.Intn(len(b.samples)))
	}
	return rows
}

func (b *builder) build(rows []int) tree {
	b.nodes = make(tree, 0, 1<<uint(b.opts.MaxDepth+1))
	b.grow(rows, 0)
	return b.nodes
}

func (b *builder) leafValue(rows []int) float64 {
	sum := 0.0
	for _, r := range rows {
		sum += b.residuals[r]
	}
	return sum / (float64(len(rows)) + b.opts.Lambda)
}

func (b *builder) score(sum float64, n int) float64 {
	return sum * sum / (float64(n) + b.opts.Lambda)
}

func (b *builder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{})

	if depth >= b.opts.MaxDepth || len(rows) < 2*b.opts.MinSamplesLeaf {
		b.nodes[idx] = node{Leaf: true, Value: b.leafValue(rows)}
		return idx
	}

	feature, threshold, ok := b.bestSplit(rows)
	if !ok {
		b.nodes[idx] = node{Leaf: true, Value: b.leafValue(rows)}
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if b.samples[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	l := b.grow(left, depth+1)
	rt := b.grow(right, depth+1)
	b.nodes[idx] = node{Feature: feature, Threshold: threshold, Left: l, Right: rt}
	return idx
}

func (b *builder) bestSplit(rows []int) (int, float64, bool) {
	total := 0.0
	for _, r := range rows {
		total += b.residuals[r]
	}
	parent := b.score(total, len(rows))
	minLeaf := b.opts.MinSamplesLeaf

	bestGain := 1e-12
	bestFeature, bestThreshold, found := 0, 0.0, false
	order := make([]int, len(rows))
	for f := range b.samples[rows[0]] {
		copy(order, rows)
		sort.Slice(order, func(i, j int) bool { return b.samples[order[i]][f] < b.samples[order[j]][f] })

		leftSum := 0.0
		for i := 0; i < len(order)-1; i++ {
			leftSum += b.residuals[order[i]]
			nLeft := i + 1
			if nLeft < minLeaf || len(order)-nLeft < minLeaf {
				continue
			}
			cur, next := b.samples[order[i]][f], b.samples[order[i+1]][f]
			if cur == next {
				continue
			}
			gain := b.score(leftSum, nLeft) + b.score(total-leftSum, len(order)-nLeft) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

// PredictVector scores a vector already in FeatureNames order.
func (m *Model) PredictVector(x []float64) (float64, error) {
	if m == nil {
		return 0, errors.New("nil model")
	}
	if len(x) != len(m.artifact.FeatureNames) {
		return 0, fmt.Errorf("vector has %d features, model expects %d", len(x), len(m.artifact.FeatureNames))
	}
	out := m.artifact.BaseScore
	for _, t := range m.artifact.Trees {
		out += m.artifact.LearningRate * t.predict(x)
	}
	return out, nil
}

// Predict reads the model's features from row by name. The date is unused.
func (m *Model) Predict(row domain.FeatureRow, _ time.Time) (float64, error) {
	if m == nil {
		return 0, errors.New("nil model")
	}
	x, err := common.FeatureVector(row, m.artifact.FeatureNames)
	if err != nil {
		return 0, err
	}
	return m.PredictVector(x)
}

func (m *Model) PredictBatch(samples [][]float64) ([]float64, error) {
	out := make([]float64, len(samples))
	for i := range samples {
		v, err := m.PredictVector(samples[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(m.artifact)
}

func UnmarshalBinary(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	if len(a.FeatureNames) == 0 || len(a.Trees) == 0 {
		return nil, errors.New("invalid artifact")
	}
	if math.IsNaN(a.BaseScore) || a.LearningRate <= 0 {
		return nil, errors.New("invalid artifact")
	}
	for ti, t := range a.Trees {
		if err := t.validate(len(a.FeatureNames)); err != nil {
			return nil, fmt.Errorf("tree %d: %w", ti, err)
		}
	}
	return &Model{artifact: a}, nil
}

func (t tree) validate(width int) error {
	if len(t) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, width)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t) || n.Right >= len(t) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.artifact.FeatureNames))
	copy(out, m.artifact.FeatureNames)
	return out
}

func (m *Model) Options() TrainOptions {
	return m.artifact.Options
}
