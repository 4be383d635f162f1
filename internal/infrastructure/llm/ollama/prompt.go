package ollama

import (
	"fmt"
	"strings"

	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
)

func buildAnswerPrompt(query, contextBlock string) string {
	return fmt.Sprintf(`You are a senior research analyst. Every claim must be
traceable to the provided context. Answer the question using ONLY the
research context below.

Return a strict JSON object with keys:
answer (string), citations (array of {source_id, chunk_id, relevant_quote}),
confidence ("high"|"medium"|"low"), evidence_quality (string),
no_evidence (boolean), caveats (array of strings).
No markdown, no extra keys.

GROUNDING RULES:
- For relevant_quote, copy a short verbatim snippet (at most 40 words)
  from the chunk that supports the claim. Do not paraphrase.
- Do NOT add facts, numbers, percentages, or details from your own
  knowledge, even if you believe they are correct.
- If the context does not contain sufficient information, set
  no_evidence to true and explain what is missing.
- Read EVERY chunk before drafting your answer.

CITATION RULES:
- Each chunk header looks like: --- CHUNK <full_chunk_id> (source: <source_id>, ...) ---
- In citations, use EXACTLY the full chunk_id (e.g. "cells_2022__body__001")
  and the source_id (e.g. "cells_2022"). Do NOT shorten them.
- ONLY cite chunk_ids that appear in the context below.

CONFIDENCE:
- "high" when multiple chunks explicitly and consistently support the answer.
- "medium" when evidence is partial or from a single chunk.
- "low" when the answer relies on inference rather than direct statements.

Question:
%s

Context:
%s
`, query, contextBlock)
}

func buildRerankPrompt(query string, candidates []ports.RelevanceCandidate) string {
	var passages strings.Builder
	for _, c := range candidates {
		preview := strings.ReplaceAll(c.TextPreview, "\n", " ")
		passages.WriteString(fmt.Sprintf("[%s]: %s\n\n", c.ChunkID, preview))
	}

	return fmt.Sprintf(`You are a relevance judge for a research retrieval system.

Given the QUERY and a set of candidate PASSAGES, rate each passage's
relevance to the query on a scale of 0-10:
  10 = directly and specifically answers the query
   7 = contains relevant information but not a direct answer
   4 = tangentially related to the topic
   1 = mentions a keyword but is otherwise irrelevant
   0 = completely irrelevant

Return a strict JSON object: {"scores": [{"chunk_id": "...", "relevance": N}, ...]}
with a score for EVERY passage listed.

QUERY: %s

PASSAGES:
%s`, query, passages.String())
}

func buildJudgePrompt(contextText, answerText string) string {
	return fmt.Sprintf(`You are a strict factual evaluator.

CONTEXT (retrieved research passages):
%s

ANSWER:
%s

Does the ANSWER make any claims that are NOT supported by the CONTEXT?
Respond with exactly one of: FAITHFUL or UNFAITHFUL
Then briefly explain why in 1-2 sentences.`, contextText, answerText)
}
