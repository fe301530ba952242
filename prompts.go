package researchgpt

import (
	"fmt"
	"regexp"
	"strings"
)

// contextSeparator joins retrieved chunks into a single prompt context.
const contextSeparator = "\n\n---\n\n"

const qaPromptTemplate = `You are a research assistant analyzing academic papers. Use the following excerpts from research papers to answer the question. If the excerpts do not contain enough information to answer, say so rather than guessing.

Excerpts:
%s

Question: %s

Answer with specific references to the excerpts where possible.`

const queryExpansionTemplate = `You are an AI language model assistant. Your task is to generate 3 different versions of the given question to retrieve relevant documents from a vector database. By generating multiple perspectives on the question, your goal is to help overcome limitations of distance-based similarity search. Provide the alternative questions as a numbered list.

Original question: %s`

const compressionTemplate = `Given the following question and document excerpt, extract only the parts of the excerpt that are relevant to answering the question. Keep extracted text verbatim. If no part of the excerpt is relevant, reply with exactly NO_OUTPUT.

Question: %s

Excerpt:
%s

Relevant parts:`

const summaryQuestion = `Provide a comprehensive summary of the key findings, methods, and conclusions across the indexed research papers. Highlight the main themes and any notable results.`

const topicSummaryTemplate = `Provide a comprehensive summary of the key findings, methods, and conclusions about %s in the indexed research papers. Highlight the main themes and any notable results.`

// BuildSummaryQuestion returns the corpus survey question, scoped to a
// topic when one is given.
func BuildSummaryQuestion(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return summaryQuestion
	}
	return fmt.Sprintf(topicSummaryTemplate, topic)
}

// BuildQAPrompt assembles the question-answering prompt from retrieved
// context chunks.
func BuildQAPrompt(question string, contexts []string) string {
	return fmt.Sprintf(qaPromptTemplate, strings.Join(contexts, contextSeparator), question)
}

// BuildQueryExpansionPrompt asks the model for alternative phrasings of
// a question.
func BuildQueryExpansionPrompt(question string) string {
	return fmt.Sprintf(queryExpansionTemplate, question)
}

// BuildCompressionPrompt asks the model to extract the question-relevant
// spans of one excerpt.
func BuildCompressionPrompt(question, excerpt string) string {
	return fmt.Sprintf(compressionTemplate, question, excerpt)
}

var numberedLineRE = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s*(.+)$`)

// ParseQueryVariations extracts question variations from a numbered or
// bulleted list in the model's reply. Lines that are not list items are
// ignored.
func ParseQueryVariations(reply string) []string {
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		m := numberedLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		q := strings.TrimSpace(m[1])
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}
