package dedupe

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Similarity scores two normalized strings in [0,1] using a Levenshtein
// ratio over sorted tokens, so word order does not matter: "blue note the"
// and "the blue note" score 1.0.
func Similarity(a, b string) float64 {
	sa := sortTokens(a)
	sb := sortTokens(b)

	if sa == sb {
		return 1.0
	}
	if sa == "" || sb == "" {
		return 0.0
	}

	dist := levenshtein.ComputeDistance(sa, sb)
	longest := len([]rune(sa))
	if l := len([]rune(sb)); l > longest {
		longest = l
	}
	return 1.0 - float64(dist)/float64(longest)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TitleSimilarity scores two raw titles after normalization. Used by the
// cross-source pass to catch the same event worded slightly differently on
// two platforms.
func TitleSimilarity(a, b string) float64 {
	return Similarity(NormalizeTitle(a), NormalizeTitle(b))
}

// VenueSimilarity scores two raw venue names after normalization.
func VenueSimilarity(a, b string) float64 {
	return Similarity(NormalizeVenueName(a), NormalizeVenueName(b))
}
