package drafter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

// templateSteps are the fixed practical steps of the degraded answer. They are
// generic consumer guidance, valid regardless of which articles were retrieved.
var templateSteps = []string{
	"Organize as provas da compra (nota fiscal, conversas, fotos)",
	"Solicite uma solução formal ao fornecedor, por escrito",
	"Se não houver acordo, registre reclamação no PROCON ou no Consumidor.gov.br",
}

// Template assembles a deterministic draft directly from the top evidence
// entries. Used when generation fails or when a redraft fails audit a second
// time; it cites only retrieved chunks, so it passes the grounding check by
// construction.
func Template(query string, es domain.EvidenceSet) domain.Draft {
	top := es.Top(domain.CitationsMax)

	citations := make([]domain.Citation, 0, len(top))
	var labels []string
	for _, e := range top {
		label := strings.TrimSpace(e.Chunk.Law + " " + e.Chunk.Article)
		if label == "" {
			label = fmt.Sprintf("referência %d", e.Chunk.ID)
		}
		citations = append(citations, domain.Citation{
			Label:    label,
			URL:      e.Chunk.URL,
			ChunkIDs: []int64{e.Chunk.ID},
		})
		labels = append(labels, label)
	}
	sort.Strings(labels)

	summary := fmt.Sprintf(
		"Não foi possível gerar uma resposta completa agora, mas os dispositivos abaixo tratam do tema da sua pergunta: %s. "+
			"Leia os trechos citados e siga os passos sugeridos para encaminhar o seu caso.",
		strings.Join(labels, "; "))
	if runes := []rune(summary); len(runes) > domain.SummaryMaxChars {
		summary = string(runes[:domain.SummaryMaxChars])
	}

	return domain.Draft{
		Summary:    summary,
		Steps:      append([]string(nil), templateSteps...),
		LegalBasis: citations,
	}
}
