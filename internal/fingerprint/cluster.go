package fingerprint

import "fmt"

// DefaultSimilarityThreshold is the minimum pairwise similarity for cluster
// membership.
const DefaultSimilarityThreshold = 0.7

// Weights of the similarity components.
const (
	signatureWeight = 0.4
	importWeight    = 0.3
	hashWeight      = 0.3
)

// FileVersion pairs a url with its fingerprint for clustering.
type FileVersion struct {
	URL string
	FP  Fingerprint
}

// Cluster is a set of files judged similar enough to be the same logical
// resource under a different name or location.
type Cluster struct {
	MemberURLs []string `json:"member_urls"`
	Reason     string   `json:"reason"`
}

// Result is one full clustering of a domain's file versions.
type Result struct {
	Clusters   []Cluster `json:"clusters"`
	Singletons []string  `json:"singletons"`
}

// Similarity computes the weighted pairwise similarity of two fingerprints.
// It is symmetric: Similarity(a, b) == Similarity(b, a).
func Similarity(a, b Fingerprint) float64 {
	s := signatureWeight * jaccard(a.Signatures, b.Signatures)
	s += importWeight * jaccard(a.Imports, b.Imports)
	if a.NormalizedHash == b.NormalizedHash {
		s += hashWeight
	}
	return s
}

// jaccard computes set overlap over sorted string slices. Two empty sets are
// identical, not dissimilar.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, v := range a {
		setA[v] = true
	}
	intersection := 0
	setB := make(map[string]bool, len(b))
	for _, v := range b {
		if !setB[v] {
			setB[v] = true
			if setA[v] {
				intersection++
			}
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// ClusterFiles partitions file versions into clusters and singletons.
//
// The algorithm is single-linkage against a seed: files are visited in the
// given fixed order, each unassigned file opens a cluster, and later
// unassigned files join when their similarity to the seed (not to other
// members) meets the threshold. The result is order-dependent and similarity
// is not transitive across a whole cluster; that approximation is kept
// deliberately. The partition is recomputed in full on every call.
func ClusterFiles(files []FileVersion, threshold float64) Result {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}

	result := Result{}
	assigned := make([]bool, len(files))

	for i := range files {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []string{files[i].URL}

		for j := i + 1; j < len(files); j++ {
			if assigned[j] {
				continue
			}
			if Similarity(files[i].FP, files[j].FP) >= threshold {
				assigned[j] = true
				members = append(members, files[j].URL)
			}
		}

		if len(members) == 1 {
			result.Singletons = append(result.Singletons, files[i].URL)
			continue
		}
		result.Clusters = append(result.Clusters, Cluster{
			MemberURLs: members,
			Reason:     fmt.Sprintf("similarity >= %.2f to seed %s", threshold, files[i].URL),
		})
	}

	return result
}
