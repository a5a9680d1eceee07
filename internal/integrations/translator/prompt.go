package translator

import (
	"strings"

	"insights-agent/internal/domain"
)

const historyContextTurns = 30

// buildPromptMessages assembles the system instructions, the dataset schema,
// prior turns, and the current question. The schema text is operator-owned
// and arrives verbatim from the parameter store.
func buildPromptMessages(schema, question string, history []domain.ConversationRecord) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: "system", Content: buildGeneratorPrompt(schema)},
	}

	// History arrives most-recent-first; the prompt wants it in reading order.
	turns := history
	if len(turns) > historyContextTurns {
		turns = turns[:historyContextTurns]
	}
	for i := len(turns) - 1; i >= 0; i-- {
		messages = append(messages, historyToPromptMessages(turns[i])...)
	}

	messages = append(messages, domain.ChatMessage{
		Role:    "user",
		Content: question,
	})
	return messages
}

func buildGeneratorPrompt(schema string) string {
	return strings.Join([]string{
		"Role:",
		"You are a SQL query generator for an app-usage analytics dataset.",
		"",
		"Task:",
		"Convert the user's natural language question into a single SQL query",
		"that runs against the dataset described below.",
		"",
		"Dataset (Parquet):",
		strings.TrimSpace(schema),
		"",
		"Behavior Rules:",
		generatorRules(),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

func historyToPromptMessages(rec domain.ConversationRecord) []domain.ChatMessage {
	question := strings.TrimSpace(rec.Query)
	sql := strings.TrimSpace(rec.SQLQuery)
	if question == "" || sql == "" {
		return nil
	}
	return []domain.ChatMessage{
		{Role: "user", Content: question},
		{Role: "assistant", Content: sql},
	}
}

func generatorRules() string {
	return strings.Join([]string{
		"1) Answer only the current user question in this request.",
		"2) Use only columns present in the dataset description.",
		"3) Prefer aggregations over raw row dumps when the question implies a summary.",
		"4) Use prior turns only to resolve references such as \"that app\" or \"same period\".",
		"5) Never modify data; generate SELECT statements only.",
	}, "\n")
}

func outputContract() string {
	return "Return JSON only with a single key sql (string) containing the SQL query " +
		"without commentary or markdown fences."
}
