package llm

import (
	"context"
	"errors"
	"testing"
)

type fakeClient struct {
	last *Request
	resp *Response
	err  error
}

func (f *fakeClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	f.last = req
	return f.resp, f.err
}

func TestTextGenerator_Generate(t *testing.T) {
	client := &fakeClient{resp: &Response{Content: []ContentBlock{
		{Type: ContentBlockTypeText, Text: " User prefers Lisbon. "},
	}}}
	g := &TextGenerator{Client: client, Model: "gpt-3.5-turbo"}

	got, err := g.Generate(context.Background(), "summarize this")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "User prefers Lisbon." {
		t.Errorf("Generate = %q", got)
	}
	if client.last.Model != "gpt-3.5-turbo" || client.last.MaxTokens != 512 {
		t.Errorf("unexpected request: %+v", client.last)
	}
	if client.last.Temperature == nil || *client.last.Temperature != 0 {
		t.Error("expected temperature 0")
	}
	if len(client.last.Messages) != 1 || TextOf(client.last.Messages[0].Content) != "summarize this" {
		t.Errorf("unexpected messages: %+v", client.last.Messages)
	}
}

func TestTextGenerator_PropagatesError(t *testing.T) {
	g := &TextGenerator{Client: &fakeClient{err: NewRateLimitError("slow down", nil, nil)}}
	if _, err := g.Generate(context.Background(), "x"); !IsRateLimitError(err) {
		t.Errorf("expected rate limit error, got %v", err)
	}
	var nilGen *TextGenerator
	if _, err := nilGen.Generate(context.Background(), "x"); err == nil {
		t.Error("expected error without client")
	}
}

func TestWrapWithMiddleware_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return MiddlewareFunc{
			BeforeRequestFunc: func(ctx context.Context, req *Request) (*Request, error) {
				calls = append(calls, "before:"+name)
				return req, nil
			},
			AfterResponseFunc: func(ctx context.Context, req *Request, resp *Response) (*Response, error) {
				calls = append(calls, "after:"+name)
				return resp, nil
			},
		}
	}
	client := WrapWithMiddleware(&fakeClient{resp: &Response{}}, mw("a"), mw("b"))
	if _, err := client.Synchronous(context.Background(), &Request{}); err != nil {
		t.Fatalf("Synchronous: %v", err)
	}
	want := []string{"before:a", "before:b", "after:b", "after:a"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestWrapWithMiddleware_OnError(t *testing.T) {
	base := errors.New("boom")
	client := WrapWithMiddleware(&fakeClient{err: base}, MiddlewareFunc{
		OnErrorFunc: func(ctx context.Context, req *Request, err error) error {
			return NewProviderError("wrapped", err)
		},
	})
	_, err := client.Synchronous(context.Background(), &Request{})
	if !errors.Is(err, base) || TypeOf(err) != ErrorTypeProvider {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResponseHelpers(t *testing.T) {
	resp := &Response{Content: []ContentBlock{
		{Type: ContentBlockTypeText, Text: "Looking that up."},
		{Type: ContentBlockTypeToolUse, ToolUse: &ToolUseBlock{ID: "1", Name: "lookup_booking"}},
		{Type: ContentBlockTypeText, Text: "One moment."},
	}}
	if got := resp.Text(); got != "Looking that up.\nOne moment." {
		t.Errorf("Text = %q", got)
	}
	if uses := resp.ToolUses(); len(uses) != 1 || uses[0].Name != "lookup_booking" {
		t.Errorf("ToolUses = %+v", uses)
	}
	var nilResp *Response
	if nilResp.Text() != "" || nilResp.ToolUses() != nil {
		t.Error("nil response helpers should be empty")
	}
}
