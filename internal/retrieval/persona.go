package retrieval

import "github.com/loomhq/loom/internal/store"

// Persona is a named retrieval profile. It decides which visibility
// scope a query may touch, how the answer is voiced, and what context
// to fall back on when vector search has nothing to offer.
type Persona struct {
	Name         string
	Visibility   string
	Statuses     []string
	Lang         string
	SystemPrompt string
	Fallback     []string
}

// Internal reports whether the persona may see internal-only content.
func (p Persona) Internal() bool {
	return p.Visibility == store.VisibilityInternal
}

const citationInstruction = "Cite 2-3 of the provided sources inline using the exact format [Source: <title> | <table>]."

var personas = map[string]Persona{
	"public": {
		Name:       "public",
		Visibility: store.VisibilityPublic,
		Statuses:   []string{"published"},
		Lang:       "en",
		SystemPrompt: "You are a helpful knowledge-base assistant. Answer using only the " +
			"provided context. If the context does not cover the question, say so. " +
			citationInstruction,
		Fallback: []string{
			"Source: Knowledge Base Overview from catalog: A curated collection of published articles and guides.",
			"Source: Getting Started from catalog: Introductory material for new readers.",
		},
	},
	"internal": {
		Name:       "internal",
		Visibility: store.VisibilityInternal,
		SystemPrompt: "You are an internal knowledge assistant with access to all team " +
			"content including publishing plans and finance records. Be direct and " +
			"complete. " + citationInstruction,
		Fallback: []string{
			"Source: Team Handbook from catalog: Internal processes and conventions.",
		},
	},
	"philosopher": {
		Name:       "philosopher",
		Visibility: store.VisibilityInternal,
		SystemPrompt: "You are a reflective assistant. Reason carefully about the " +
			"question, weigh perspectives found in the context, and avoid premature " +
			"conclusions. " + citationInstruction,
		Fallback: []string{
			"Source: Essays Collection from catalog: Long-form reflective writing on technology and society.",
		},
	},
	"comprehensive-ai": {
		Name:       "comprehensive-ai",
		Visibility: store.VisibilityInternal,
		SystemPrompt: "You are a thorough research assistant. Cover every relevant " +
			"aspect of the question found in the context, organized clearly. " +
			citationInstruction,
		Fallback: []string{
			"Source: Research Notes from catalog: Accumulated research material across projects.",
		},
	},
}

// LookupPersona resolves a persona by name. Unknown names get the
// public persona, the most restrictive scope.
func LookupPersona(name string) Persona {
	if p, ok := personas[name]; ok {
		return p
	}
	return personas["public"]
}

// searchTables returns the logical tables the persona may search.
// Internal-only tables are excluded for public scopes.
func searchTables(p Persona) []store.Table {
	if p.Internal() {
		return store.Tables
	}
	var out []store.Table
	for _, t := range store.Tables {
		if !t.InternalOnly() {
			out = append(out, t)
		}
	}
	return out
}
