package cover

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// nonWord matches every rune that is not a letter, digit, underscore,
// whitespace or hyphen.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

// Normalize prepares album and artist text for comparison. The result is
// lowercase NFKC with punctuation removed and surrounding whitespace trimmed,
// so composed and decomposed accents compare equal.
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	s = nonWord.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Tier values returned by MatchTier. Lower is better.
const (
	TierExact      = 1
	TierAlbumMatch = 2
	TierOther      = 3
)

// MatchTier places c into one of the three relevance tiers for q.
//
// Tier 1 requires both query fields to be present and equal to the
// candidate's. Tier 2 requires the album to match and, when the query names an
// artist, the artist too; a mismatched artist drops the candidate to tier 3.
func MatchTier(q SearchQuery, c AlbumCandidate) int {
	qAlbum, qArtist := Normalize(q.Album), Normalize(q.Artist)
	album, artist := Normalize(c.AlbumName), Normalize(c.ArtistName)
	if qAlbum == "" || album != qAlbum {
		return TierOther
	}
	if qArtist != "" {
		if artist != qArtist {
			return TierOther
		}
		return TierExact
	}
	return TierAlbumMatch
}

// Rank orders the candidates one adapter returned for q. Candidates keep the
// adapter's order inside their tier and an identifier is emitted at most once,
// in the best tier it qualifies for.
func Rank(q SearchQuery, cands []AlbumCandidate) []AlbumCandidate {
	if len(cands) == 0 {
		return nil
	}
	var tiers [3][]AlbumCandidate
	for _, c := range cands {
		t := MatchTier(q, c)
		tiers[t-1] = append(tiers[t-1], c)
	}
	out := make([]AlbumCandidate, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, tier := range tiers {
		for _, c := range tier {
			if _, dup := seen[c.Identifier]; dup {
				continue
			}
			seen[c.Identifier] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
