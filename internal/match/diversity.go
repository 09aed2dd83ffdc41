package match

import (
	"strings"

	"github.com/lyricroom/songmatch/pkg/catalog"
)

// selectAlternates picks up to maxAlternates alternates from the remaining
// sorted candidates. Unless relaxed, an alternate may not share its artist or
// decade bucket with the primary or with any already-accepted alternate.
//
// The relaxation applies when the requesting user's recent history already
// spans at least two distinct decades — a listener who ranges across eras
// does not need the engine to enforce spread.
func selectAlternates(primary Candidate, rest []Candidate, maxAlternates int, relaxed bool) []Candidate {
	var alternates []Candidate
	for _, cand := range rest {
		if len(alternates) >= maxAlternates {
			break
		}
		if !relaxed {
			if sharesArtistOrDecade(cand.Song, primary.Song) {
				continue
			}
			conflict := false
			for _, accepted := range alternates {
				if sharesArtistOrDecade(cand.Song, accepted.Song) {
					conflict = true
					break
				}
			}
			if conflict {
				continue
			}
		}
		alternates = append(alternates, cand)
	}
	return alternates
}

// sharesArtistOrDecade reports whether two songs collide under the diversity
// rule: same artist (case-insensitive) or same decade bucket. Songs with an
// unknown release year never collide on decade.
func sharesArtistOrDecade(a, b catalog.Song) bool {
	if a.Artist != "" && strings.EqualFold(a.Artist, b.Artist) {
		return true
	}
	da, db := a.Decade(), b.Decade()
	return da != 0 && da == db
}

// decadesSpanned counts the distinct decade buckets across songs, ignoring
// unknown years.
func decadesSpanned(songs []catalog.Song) int {
	seen := make(map[int]struct{})
	for _, s := range songs {
		if d := s.Decade(); d != 0 {
			seen[d] = struct{}{}
		}
	}
	return len(seen)
}
