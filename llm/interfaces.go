package llm

import (
	"context"
)

// Client provides a provider-neutral interface for chat completion calls.
// Implementations handle provider-specific details internally.
type Client interface {
	// Synchronous sends a request and returns a complete response.
	Synchronous(ctx context.Context, req *Request) (*Response, error)
}

// Middleware provides hooks for decorating Client calls such as logging,
// metrics and rate limiting.
type Middleware interface {
	// BeforeRequest is called before making an API request.
	// It can modify the request or return an error to abort the request.
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)

	// AfterResponse is called after receiving a response.
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)

	// OnError is called when an error occurs.
	// It can return a modified error or nil to use the original error.
	OnError(ctx context.Context, req *Request, err error) error
}

// MiddlewareFunc implements Middleware from optional funcs.
type MiddlewareFunc struct {
	BeforeRequestFunc func(ctx context.Context, req *Request) (*Request, error)
	AfterResponseFunc func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnErrorFunc       func(ctx context.Context, req *Request, err error) error
}

// BeforeRequest calls the BeforeRequestFunc if set.
func (f MiddlewareFunc) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeRequestFunc != nil {
		return f.BeforeRequestFunc(ctx, req)
	}
	return req, nil
}

// AfterResponse calls the AfterResponseFunc if set.
func (f MiddlewareFunc) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if f.AfterResponseFunc != nil {
		return f.AfterResponseFunc(ctx, req, resp)
	}
	return resp, nil
}

// OnError calls the OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, req *Request, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, req, err)
	}
	return err
}

// WrapWithMiddleware wraps a Client with middleware and returns a new Client.
// BeforeRequest hooks run in order, AfterResponse hooks in reverse order.
func WrapWithMiddleware(client Client, middleware ...Middleware) Client {
	if len(middleware) == 0 {
		return client
	}
	return &clientWithMiddleware{
		client:     client,
		middleware: middleware,
	}
}

type clientWithMiddleware struct {
	client     Client
	middleware []Middleware
}

// Synchronous implements Client.Synchronous with middleware support.
func (c *clientWithMiddleware) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	for _, mw := range c.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	resp, err := c.client.Synchronous(ctx, req)
	if err != nil {
		for _, mw := range c.middleware {
			if handled := mw.OnError(ctx, req, err); handled != nil {
				err = handled
			}
		}
		return nil, err
	}

	for i := len(c.middleware) - 1; i >= 0; i-- {
		resp, err = c.middleware[i].AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

var _ Client = (*clientWithMiddleware)(nil)
