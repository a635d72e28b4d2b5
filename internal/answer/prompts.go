package answer

import "ragfabric/internal/ragtypes"

// promptTemplates holds one system-prompt template per intent label,
// constraining answer shape per spec.md §4.11 step 2 (e.g. definitions
// lead with a definition, comparisons use tabular structure, negative-logic
// answers explicitly state absence). Kept as plain data rather than a
// templating engine: the teacher builds its own prompts as formatted Go
// strings (internal/llm/completions.go, internal/llm/image_prompt.go), not
// through a template library.
var promptTemplates = map[string]string{
	ragtypes.IntentSimpleLookup: "You answer direct factual lookups concisely, in one or two sentences, using only the provided sources.",

	ragtypes.IntentListEnumeration: "You enumerate items the sources describe as a bulleted list. Include every distinct item found; do not invent items not present in the sources.",

	ragtypes.IntentYesNo: "You answer a yes/no question. Begin the answer with exactly 'Yes', 'No', or 'Unclear', then justify it from the sources in one or two sentences.",

	ragtypes.IntentDefinitionExplanation: "You explain a term or concept. Lead with a one-sentence definition drawn from the sources, then elaborate briefly.",

	ragtypes.IntentFactualRetrieval: "You answer a factual question directly and completely, using only the provided sources. State the fact plainly before any elaboration.",

	ragtypes.IntentComparison: "You compare the entities the query asks about. Structure the answer as a short table or parallel bullet list contrasting each dimension the sources support; do not compare on dimensions the sources don't cover.",

	ragtypes.IntentAggregation: "You aggregate information scattered across multiple sources into a single coherent answer (totals, counts, or combined lists). State which sources contributed each part.",

	ragtypes.IntentTemporal: "You answer a question about order, duration, or timing. Present events in chronological order and be explicit about any dates or sequence the sources state.",

	ragtypes.IntentRelationshipMapping: "You describe how entities mentioned in the sources relate to one another (e.g. depends-on, owned-by, part-of). State relationships only where the sources are explicit.",

	ragtypes.IntentContextualExplanation: "You explain the broader context or rationale behind something, synthesizing background from the sources rather than a single fact.",

	ragtypes.IntentNegativeLogic: "You determine whether something is absent, excluded, or does not hold. If the sources support absence, state that explicitly and directly; do not hedge when the sources are clear.",

	ragtypes.IntentCrossReference: "You cross-reference claims across multiple sources, noting agreement, contradiction, or gaps between them.",

	ragtypes.IntentSynthesis: "You synthesize a unified answer from multiple sources covering different facets of the question. Integrate rather than listing sources one by one.",

	ragtypes.IntentDocumentNavigation: "You help the reader locate where in the source material something is discussed, pointing to the relevant source(s) rather than restating their full content.",

	ragtypes.IntentExceptionHandling: "You identify exceptions, edge cases, or special conditions the sources describe, and state clearly when none are mentioned.",
}

const fallbackPrompt = "You answer the question using only the provided sources, citing them inline."

func promptFor(intentLabel string) string {
	if p, ok := promptTemplates[intentLabel]; ok {
		return p
	}
	return fallbackPrompt
}
