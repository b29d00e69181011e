package usecase

import (
	"sort"
	"strings"

	"document-intelligence/internal/domain/model"
)

// EnforceCitations patches a generated section so that its chunk ids are a
// subset of the evidence it was given. Empty citations are backfilled from
// the evidence.
func EnforceCitations(sec *model.Section, evidence []model.ExtractionChunk) {
	allowed := make(map[string]bool, len(evidence))
	for _, c := range evidence {
		allowed[c.ID] = true
	}

	var ids []string
	seen := make(map[string]bool)
	for _, id := range sec.Citations.ChunkIDs {
		if allowed[id] && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		for _, c := range evidence {
			ids = append(ids, c.ID)
		}
	}
	sec.Citations.ChunkIDs = ids

	cited := make(map[string]bool, len(ids))
	for _, id := range ids {
		cited[id] = true
	}
	var pages []int
	for _, p := range sec.Citations.Pages {
		for _, c := range evidence {
			if cited[c.ID] && c.Covers(p) {
				pages = append(pages, p)
				break
			}
		}
	}
	if len(pages) == 0 {
		for _, c := range evidence {
			if cited[c.ID] {
				pages = append(pages, c.Pages()...)
			}
		}
	}
	sec.Citations.Pages = uniqueSorted(pages)
}

func uniqueSorted(in []int) []int {
	out := make([]int, 0, len(in))
	seen := make(map[int]bool, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// FlowchartsOnly keeps mermaid diagrams that are flowcharts and drops the
// rest.
func FlowchartsOnly(diagrams []model.Diagram) []model.Diagram {
	var out []model.Diagram
	for _, d := range diagrams {
		src := strings.TrimSpace(d.Source)
		src = strings.TrimPrefix(src, "```mermaid")
		src = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(src), "```"))
		head := strings.ToLower(src)
		if strings.HasPrefix(head, "flowchart") || strings.HasPrefix(head, "graph") {
			out = append(out, model.Diagram{Kind: "mermaid", Source: src})
		}
	}
	return out
}

// KeepPackagedFigures restricts model-returned figures to those packaged
// with the evidence, falling back to the packaged set.
func KeepPackagedFigures(returned, packaged []model.FigureRef) []model.FigureRef {
	byID := make(map[string]model.FigureRef, len(packaged))
	for _, f := range packaged {
		byID[f.BlockID] = f
	}
	var out []model.FigureRef
	for _, f := range returned {
		if p, ok := byID[f.BlockID]; ok {
			out = append(out, p)
			delete(byID, f.BlockID)
		}
	}
	if len(out) == 0 {
		return packaged
	}
	return out
}
