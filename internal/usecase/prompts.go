package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"document-intelligence/internal/domain/model"
)

const classifySystemPrompt = `You classify a document from excerpts of its extracted content.
Return only a JSON object with these keys:
  "document_type": short label such as "technical manual", "invoice", "research paper",
  "topics": 5 to 20 distinct topics covered by the content, most important first,
  "vendor": the product vendor if one is clearly named, else "",
  "vendor_candidates": possible vendors when uncertain,
  "confidence": your confidence in the vendor between 0 and 1,
  "evidence_terms": terms copied verbatim from the content that support the classification.
Use only the provided content. Do not use outside knowledge. Every evidence term must appear literally in the content.`

const sectionSystemPrompt = `You write one section of an explanation of a document.
Use only the evidence provided. If the evidence does not support a statement, leave it out.
Return only a JSON object with these keys:
  "title": section title,
  "explanation": several sentences explaining the topic,
  "bullets": key takeaways,
  "diagrams": optional list of {"kind": "mermaid", "source": "..."}; mermaid sources must be flowcharts,
  "equations": optional list of equations present in the evidence,
  "tables": optional list of {"caption": "...", "header": [...], "rows": [[...]]},
  "figures": optional list of {"block_id": "..."} chosen from the listed figures,
  "citations": {"chunkIds": ids of the evidence chunks you used, "pages": page numbers you used}.
Cite only chunk ids that appear in the evidence.`

func sectionUserPrompt(topic string, cls *model.Classification, cov model.Coverage, pkg evidencePackage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	if cls != nil && cls.DocumentType != "" {
		fmt.Fprintf(&b, "Document type: %s\n", cls.DocumentType)
	}
	if cov.Warning != "" {
		fmt.Fprintf(&b, "Coverage: %s\n", cov.Warning)
	}
	if len(pkg.pages) > 0 {
		fmt.Fprintf(&b, "Citable pages: %s\n", pageRanges(pkg.pages))
	}
	b.WriteString("\nEvidence:\n\n")
	b.WriteString(pkg.prompt)
	if len(pkg.figures) > 0 {
		b.WriteString("Figures:\n")
		for _, f := range pkg.figures {
			fmt.Fprintf(&b, "- %s (page %d)\n", f.BlockID, f.Page)
		}
	}
	return b.String()
}

func singleShotPrompt(doc *model.Document, cov model.Coverage, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", overviewTopic)
	if doc.Title != "" {
		fmt.Fprintf(&b, "Document title: %s\n", doc.Title)
	}
	if cov.Warning != "" {
		fmt.Fprintf(&b, "Coverage: %s\n", cov.Warning)
	}
	b.WriteString("\nNo chunk ids exist for this document; cite pages only.\n\nDocument text:\n\n")
	b.WriteString(text)
	return b.String()
}

// pageRanges collapses sorted page indices into "1-3, 7" form.
func pageRanges(pages []int) string {
	var parts []string
	for i := 0; i < len(pages); {
		j := i
		for j+1 < len(pages) && pages[j+1] == pages[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, strconv.Itoa(pages[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", pages[i], pages[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ", ")
}
