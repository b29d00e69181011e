package usecase

import (
	"fmt"
	"sort"
	"strings"

	"document-intelligence/internal/domain/model"
)

// CoverageWarnThreshold is the ratio under which an artifact carries a
// completeness warning.
const CoverageWarnThreshold = 0.95

const GenerationUnavailableWarning = "Explanation generation is unavailable: no language model is configured."

// ComputeCoverage derives coverage from page rows. totalPages is the known
// page count of the document (0 when undetermined); rows beyond it are
// ignored and indices without a row count as missing.
func ComputeCoverage(totalPages int, pages []model.DocumentPage) model.Coverage {
	total := totalPages
	if total <= 0 {
		total = len(pages)
	}
	cov := model.Coverage{TotalPages: total, MissingPages: []int{}}
	if total <= 0 {
		return cov
	}

	done := make(map[int]bool, len(pages))
	for _, p := range pages {
		if p.PageIndex < 1 || p.PageIndex > total {
			continue
		}
		if p.Status == model.PageStatusDone {
			done[p.PageIndex] = true
		}
	}
	for i := 1; i <= total; i++ {
		if !done[i] {
			cov.MissingPages = append(cov.MissingPages, i)
		}
	}
	sort.Ints(cov.MissingPages)

	cov.DonePages = len(done)
	ratio := float64(cov.DonePages) / float64(total)
	cov.Ratio = &ratio
	if ratio < CoverageWarnThreshold {
		cov.Warning = fmt.Sprintf(
			"Only %d%% of pages were extracted (%d of %d). This explanation may be incomplete and must not be presented as complete.",
			int(ratio*100), cov.DonePages, total)
	}
	return cov
}

// ApplyCoverage overwrites whatever coverage a generator produced with the
// gate's own computation.
func ApplyCoverage(content *model.ExplainContent, cov model.Coverage) {
	if content == nil {
		return
	}
	cov.MissingPages = append([]int{}, cov.MissingPages...)
	if content.Mode == model.ModeUnavailable {
		parts := []string{GenerationUnavailableWarning}
		if cov.Warning != "" {
			parts = append(parts, cov.Warning)
		}
		cov.Warning = strings.Join(parts, " ")
	}
	content.Coverage = cov
}
