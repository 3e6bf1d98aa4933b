package models

const (
	ContextSeparator = "\n---\n"
	HistorySuffix    = "_history"
)

var (
	SystemPromptTemplate = `You are a helpful assistant analyzing PDF content. When appropriate, use bullet points to structure your responses.
Context from PDF: %s

Guidelines:
- Use bullet points (•) when listing items or steps
- Keep responses clear and concise
- If the question is about lists, steps, or multiple items, always use bullet points
- For general questions, use regular paragraph format`
)
