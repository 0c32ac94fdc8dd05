package llm

import (
	"context"
	"fmt"
)

const answerSystemPrompt = `You are an expert software engineer and code analyst. You have been provided with relevant code context from a repository to answer a specific question.

Your task is to:
1. Analyze the provided code context carefully
2. Answer the user's question based on the code and your understanding
3. Provide specific examples from the code when relevant
4. Be clear and concise in your explanation
5. If the context doesn't contain enough information to fully answer the question, say so

Guidelines:
- Reference specific files, functions, or code snippets when relevant
- Explain complex concepts in simple terms
- Provide actionable insights when possible
- If you notice potential issues or improvements, mention them
- Be honest about limitations of your analysis`

// Answerer produces the final answer with the strong model.
type Answerer struct {
	client      Completer
	model       string
	temperature float64
	maxTokens   int
}

func NewAnswerer(client Completer, model string, temperature float64, maxTokens int) *Answerer {
	return &Answerer{client: client, model: model, temperature: temperature, maxTokens: maxTokens}
}

func (a *Answerer) Model() string {
	return a.model
}

func (a *Answerer) Answer(ctx context.Context, question, contextText string) (string, error) {
	messages := []Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nCode Context:\n%s\n\nPlease analyze the code context and provide a comprehensive answer to the question.",
			question, contextText)},
	}

	answer, err := a.client.Complete(ctx, messages, CompleteOptions{
		Model:       a.model,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}
