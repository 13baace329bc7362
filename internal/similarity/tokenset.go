// Package similarity scores how alike two records are.
//
// The measure is a token-set ratio: both texts are folded to lowercase
// alphanumeric words, the shared words are factored out, and the remaining
// strings are compared with a normalized insertion/deletion distance. Word
// order never matters and an extra word only costs in proportion to its
// length relative to the shared words.
package similarity

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TokenSetRatio returns a similarity in [0,1] between a and b.
//
// Two texts that fold to nothing (empty, or punctuation only) score 1 when
// they are byte-identical and 0 otherwise, so every text is fully similar
// to itself.
//
// Accents are folded to their base letters ("Café" tokenizes as "cafe"),
// so accented text scores higher than under ASCII-only preprocessing that
// drops non-ASCII runes ("caf").
func TokenSetRatio(a, b string) float64 {
	return scorePrepared(prepare(a), prepare(b))
}

type prepared struct {
	raw    string
	tokens []string // sorted, unique
}

func prepare(s string) prepared {
	return prepared{raw: s, tokens: tokenize(fold(s))}
}

// fold decomposes accented letters and drops the marks, then keeps letters,
// digits and underscores, lowercased, replacing everything else with spaces.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
}

func tokenize(s string) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	sort.Strings(words)
	out := words[:1]
	for _, w := range words[1:] {
		if w != out[len(out)-1] {
			out = append(out, w)
		}
	}
	return out
}

func scorePrepared(a, b prepared) float64 {
	if len(a.tokens) == 0 || len(b.tokens) == 0 {
		if len(a.tokens) == 0 && len(b.tokens) == 0 && a.raw == b.raw {
			return 1
		}
		return 0
	}
	sect, onlyA, onlyB := splitSorted(a.tokens, b.tokens)
	if len(sect) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 1
	}
	sectLen := joinedLen(sect)
	abStr, baStr := strings.Join(onlyA, " "), strings.Join(onlyB, " ")
	abLen, baLen := joinedLen(onlyA), joinedLen(onlyB)
	sep := 0
	if sectLen > 0 {
		sep = 1
	}
	sectAB := sectLen + sep + abLen
	sectBA := sectLen + sep + baLen

	// "sect ab" vs "sect ba" share the sect prefix, so only the tails differ.
	best := percent(sectAB+sectBA, indelDistance(abStr, baStr))
	if sectLen > 0 {
		// "sect" vs "sect ab" differ by exactly the appended tail
		best = math.Max(best, percent(sectLen+sectAB, sep+abLen))
		best = math.Max(best, percent(sectLen+sectBA, sep+baLen))
	}
	return math.RoundToEven(best) / 100
}

func percent(lensum, dist int) float64 {
	if lensum == 0 {
		return 100
	}
	return 100 - 100*float64(dist)/float64(lensum)
}

// splitSorted partitions two sorted unique slices into shared and exclusive words.
func splitSorted(a, b []string) (sect, onlyA, onlyB []string) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			sect = append(sect, a[i])
			i++
			j++
		case a[i] < b[j]:
			onlyA = append(onlyA, a[i])
			i++
		default:
			onlyB = append(onlyB, b[j])
			j++
		}
	}
	onlyA = append(onlyA, a[i:]...)
	onlyB = append(onlyB, b[j:]...)
	return
}

// joinedLen is the rune length of strings.Join(words, " ").
func joinedLen(words []string) int {
	if len(words) == 0 {
		return 0
	}
	n := len(words) - 1
	for _, w := range words {
		n += len([]rune(w))
	}
	return n
}

// indelDistance counts the insertions and deletions turning a into b,
// which is len(a)+len(b)-2*LCS(a,b) over runes.
func indelDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return len(ra) + len(rb) - 2*prev[len(rb)]
}
