package inventory

import (
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

type MappingClass string

const (
	MappingAutoMap    MappingClass = "auto-map"
	MappingReview     MappingClass = "review"
	MappingNewOutturn MappingClass = "new-outturn"
)

const (
	autoMapThreshold = 0.95
	reviewThreshold  = 0.8
)

type OutturnCandidate struct {
	Outturn       Outturn      `json:"outturn"`
	CanonicalText string       `json:"canonical_text"`
	Score         float64      `json:"score"`
	Class         MappingClass `json:"class"`
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over normalized text.
func Similarity(a, b string) float64 {
	na, nb := NormalizeText(a), NormalizeText(b)
	if na == nb {
		return 1
	}
	longest := utf8.RuneCountInString(na)
	if l := utf8.RuneCountInString(nb); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(na, nb))/float64(longest)
}

func ClassifyScore(score float64) MappingClass {
	switch {
	case score >= autoMapThreshold:
		return MappingAutoMap
	case score >= reviewThreshold:
		return MappingReview
	default:
		return MappingNewOutturn
	}
}

// ScoreOutturnCandidates ranks outturns by similarity to a free-text variety, best first.
func ScoreOutturnCandidates(text string, outturns []Outturn) []OutturnCandidate {
	out := make([]OutturnCandidate, 0, len(outturns))
	for _, o := range outturns {
		canonical := o.CanonicalText()
		score := Similarity(text, canonical)
		out = append(out, OutturnCandidate{
			Outturn:       o,
			CanonicalText: canonical,
			Score:         score,
			Class:         ClassifyScore(score),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Outturn.Id < out[j].Outturn.Id
	})
	return out
}

// BestOutturnMatch returns the top candidate, classified new-outturn when there is none.
func BestOutturnMatch(text string, outturns []Outturn) (OutturnCandidate, bool) {
	ranked := ScoreOutturnCandidates(text, outturns)
	if len(ranked) == 0 {
		return OutturnCandidate{Class: MappingNewOutturn}, false
	}
	return ranked[0], true
}
