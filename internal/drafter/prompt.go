package drafter

import (
	"fmt"
	"strings"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

const systemPrompt = `Você é um redator de conteúdo educacional sobre direito do consumidor brasileiro. ` +
	`Com base APENAS nos trechos de evidência fornecidos, produza uma resposta educativa em JSON com o formato: ` +
	`{"summary": "<parágrafo único, até 600 caracteres>", ` +
	`"steps": ["<3 a 5 passos práticos>"], ` +
	`"legal_basis": [{"label": "<ex: CDC Art. 49>", "url": "<url canônica do trecho>", "chunk_ids": [<ids dos trechos citados>]}], ` +
	`"quiz": [{"question": "...", "answer": "...", "reference": "..."}], ` +
	`"glossary": [{"term": "...", "definition": "..."}]}. ` +
	`Regras: cite de 1 a 5 bases legais; use SOMENTE chunk_ids listados nas evidências; ` +
	`quiz (até 3) e glossary (até 8) são opcionais; ` +
	`explique direitos gerais sem recomendar ações para o caso específico do usuário.`

// renderUser assembles the user message: the question, the numbered evidence
// blocks the model may cite, and any audit feedback from a failed attempt.
func renderUser(query string, es domain.EvidenceSet, feedback []string) string {
	var b strings.Builder

	b.WriteString("Pergunta: ")
	b.WriteString(query)
	b.WriteString("\n\nEvidências disponíveis:\n")

	for _, e := range es {
		fmt.Fprintf(&b, "[chunk_id=%d] %s (%s) %s\n%s\n\n",
			e.Chunk.ID, e.Chunk.Article, e.Chunk.Law, e.Chunk.URL, e.Chunk.Text)
	}

	if len(feedback) > 0 {
		b.WriteString("A tentativa anterior foi reprovada na auditoria. Corrija exatamente estes problemas:\n")
		for _, f := range feedback {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}

	return b.String()
}
