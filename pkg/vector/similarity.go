package vector

import "math"

// Scorer computes a similarity score where higher is more alike.
type Scorer func(a, b Vector) (float32, error)

// ScorerFor returns the scorer for a metric.
func ScorerFor(m Metric) (Scorer, error) {
	switch m {
	case Cosine, "":
		return CosineSimilarity, nil
	case Euclidean:
		return EuclideanSimilarity, nil
	case DotProduct:
		return DotProductSimilarity, nil
	default:
		return nil, InvalidConfig("unknown metric %q", m)
	}
}

// Similarity scores a and b with the given metric.
func Similarity(m Metric, a, b Vector) (float32, error) {
	score, err := ScorerFor(m)
	if err != nil {
		return 0, err
	}
	return score(a, b)
}

// CosineSimilarity normalizes both vectors and takes the dot product.
// A zero vector scores 0 against anything.
func CosineSimilarity(a, b Vector) (float32, error) {
	if len(a) != len(b) {
		return 0, DimensionMismatch("", "", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb))), nil
}

// EuclideanSimilarity maps distance d to 1/(1+d).
func EuclideanSimilarity(a, b Vector) (float32, error) {
	if len(a) != len(b) {
		return 0, DimensionMismatch("", "", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(1 / (1 + math.Sqrt(sum))), nil
}

// DotProductSimilarity is the raw inner product.
func DotProductSimilarity(a, b Vector) (float32, error) {
	if len(a) != len(b) {
		return 0, DimensionMismatch("", "", len(a), len(b))
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot), nil
}
