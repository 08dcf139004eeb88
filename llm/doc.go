// Package llm is a provider-neutral layer over chat model APIs.
//
// Messages carry a role and content blocks (text, tool use, tool result).
// Provider packages (anthropic, openai, ollama) implement Client and
// translate errors into *Error so callers can detect rate limits and
// timeouts without importing provider SDKs.
//
// Cross-cutting concerns such as logging and metrics are added with
// WrapWithMiddleware:
//
//	client := llm.WrapWithMiddleware(base, logging, metrics)
//	resp, err := client.Synchronous(ctx, &llm.Request{
//	    Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hello!")},
//	})
//
// TextGenerator adapts a Client to the single-prompt generation used for
// conversation summaries.
package llm
