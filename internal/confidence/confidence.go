// Package confidence builds the ConfidenceEnvelope attached to every
// orchestrator answer: how much of the candidate set was actually
// verified fresh, broken down per repo, plus any warnings accumulated
// along the way.
//
// Grounded on
// original_source/src/cxxtract/orchestrator/services/confidence_service.py's
// build_confidence — same verified/total ratio, same per-repo
// coverage breakdown keyed by the file key's repo-id prefix, same
// warning deduplication.
package confidence

import (
	"math"
	"sort"
	"strings"

	"github.com/cxxtract/cxxtract-go/internal/coretypes"
)

// Build constructs a ConfidenceEnvelope from one query's file
// classification outputs.
func Build(verified, stale, unparsed []coretypes.FileKey, warnings []string, overlayMode coretypes.OverlayMode) coretypes.ConfidenceEnvelope {
	total := len(verified) + len(stale) + len(unparsed)
	var verifiedRatio float64
	if total > 0 {
		verifiedRatio = round4(float64(len(verified)) / float64(total))
	}

	repoTotal := make(map[string]int)
	repoVerified := make(map[string]int)

	all := make([]coretypes.FileKey, 0, total)
	all = append(all, verified...)
	all = append(all, stale...)
	all = append(all, unparsed...)
	for _, fk := range all {
		repoTotal[repoOf(fk)]++
	}
	for _, fk := range verified {
		repoVerified[repoOf(fk)]++
	}

	repoCoverage := make(map[string]float64, len(repoTotal))
	for repoID, count := range repoTotal {
		if count == 0 {
			continue
		}
		repoCoverage[repoID] = round4(float64(repoVerified[repoID]) / float64(count))
	}

	return coretypes.ConfidenceEnvelope{
		VerifiedFiles:   verified,
		StaleFiles:      stale,
		UnparsedFiles:   unparsed,
		TotalCandidates: total,
		VerifiedRatio:   verifiedRatio,
		Warnings:        dedupeSorted(warnings),
		OverlayMode:     overlayMode,
		RepoCoverage:    repoCoverage,
	}
}

func repoOf(fk coretypes.FileKey) string {
	s := string(fk)
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[:idx]
	}
	return "unknown"
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func dedupeSorted(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}
