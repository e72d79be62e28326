package extract

import "testing"

func TestMergeEndpointsKeepsHigherConfidence(t *testing.T) {
	low := Endpoint{URL: "/api/users", Category: CategoryLineContext, Confidence: ConfidenceLow, score: 2}
	high := Endpoint{URL: "/api/users", Category: CategoryNetworkCall, Confidence: ConfidenceHigh, Method: "GET", score: 11}

	got := MergeEndpoints(low, high)
	if got.Confidence != ConfidenceHigh || got.Method != "GET" {
		t.Fatalf("merge lost the high-confidence variant: %+v", got)
	}
}

func TestMergeEndpointsCommutative(t *testing.T) {
	pairs := []struct {
		a, b Endpoint
	}{
		{
			Endpoint{URL: "/x", Category: CategoryNetworkCall, Confidence: ConfidenceHigh, Method: "POST", score: 9},
			Endpoint{URL: "/x", Category: CategoryAbsoluteURL, Confidence: ConfidenceHigh, score: 9},
		},
		{
			Endpoint{URL: "/x", Category: CategoryPathLiteral, Confidence: ConfidenceMedium, score: 5},
			Endpoint{URL: "/x", Category: CategoryConfigKey, Confidence: ConfidenceMedium, score: 4},
		},
		{
			Endpoint{URL: "/x", Category: CategoryFetch, Confidence: ConfidenceHigh, Method: "FETCH", score: 8},
			Endpoint{URL: "/x", Category: CategoryFetch, Confidence: ConfidenceHigh, Method: "GET", score: 8},
		},
	}
	for i, p := range pairs {
		ab := MergeEndpoints(p.a, p.b)
		ba := MergeEndpoints(p.b, p.a)
		if ab != ba {
			t.Errorf("pair %d: merge depends on argument order: %+v vs %+v", i, ab, ba)
		}
	}
}

func TestMergeEndpointsTieFavorsResolvedCalls(t *testing.T) {
	call := Endpoint{URL: "/api/x", Category: CategoryNetworkCall, Confidence: ConfidenceHigh, Method: "GET", score: 11}
	literal := Endpoint{URL: "/api/x", Category: CategoryAbsoluteURL, Confidence: ConfidenceHigh, score: 11}

	got := MergeEndpoints(literal, call)
	if got.Category != CategoryNetworkCall {
		t.Fatalf("tie should favor the resolved call, got %s", got.Category)
	}
}

func TestScoreCandidateBonusesAndThresholds(t *testing.T) {
	tests := []struct {
		name      string
		c         candidate
		wantScore int
		wantConf  Confidence
	}{
		{
			"network call with api bonus",
			candidate{value: "/api/users", category: CategoryNetworkCall},
			11, ConfidenceHigh,
		},
		{
			"versioned path literal",
			candidate{value: "/v2/items", category: CategoryPathLiteral},
			7, ConfidenceMedium,
		},
		{
			"graphql config key",
			candidate{value: "graphql_url", category: CategoryConfigKey},
			6, ConfidenceMedium,
		},
		{
			"line context with hint",
			candidate{value: "/misc/thing", category: CategoryLineContext, context: `axios.get("/misc/thing")`},
			3, ConfidenceLow,
		},
		{
			"plain line context",
			candidate{value: "/misc/thing", category: CategoryLineContext},
			2, ConfidenceLow,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score, conf := scoreCandidate(tc.c)
			if score != tc.wantScore || conf != tc.wantConf {
				t.Fatalf("got (%d, %s), want (%d, %s)", score, conf, tc.wantScore, tc.wantConf)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	endpoints := []Endpoint{
		{URL: "/a", Category: CategoryNetworkCall, Confidence: ConfidenceHigh, Method: "GET"},
		{URL: "/b", Category: CategoryNetworkCall, Confidence: ConfidenceHigh, Method: "POST"},
		{URL: "/c", Category: CategoryLineContext, Confidence: ConfidenceLow},
	}
	s := Summarize(endpoints)
	if s.Total != 3 {
		t.Fatalf("total = %d, want 3", s.Total)
	}
	if s.ByConfidence["HIGH"] != 2 || s.ByConfidence["LOW"] != 1 {
		t.Fatalf("confidence counts wrong: %v", s.ByConfidence)
	}
	if s.ByMethod["GET"] != 1 || s.ByMethod["POST"] != 1 {
		t.Fatalf("method counts wrong: %v", s.ByMethod)
	}
	if s.ByCategory["network-call"] != 2 {
		t.Fatalf("category counts wrong: %v", s.ByCategory)
	}
}
