package middleware

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/fireflyframework/genai-data/agent/lineage"
)

type invocationKey struct{}

// InvocationFromContext returns the lineage context of the innermost running component.
func InvocationFromContext(ctx context.Context) (*lineage.InvocationContext, bool) {
	ic, ok := ctx.Value(invocationKey{}).(*lineage.InvocationContext)
	return ic, ok && ic != nil
}

// NewLineageHandler returns an eino callback handler that records one lineage
// entry per component run. Errors complete the invocation with no result.
func NewLineageHandler(rec *lineage.Recorder) callbacks.Handler {
	start := func(ctx context.Context, info *callbacks.RunInfo) context.Context {
		ic := lineage.NewInvocationContext(agentName(info), method(info))
		rec.Before(ic)
		return context.WithValue(ctx, invocationKey{}, ic)
	}
	finish := func(ctx context.Context, info *callbacks.RunInfo, output any) context.Context {
		ic, ok := InvocationFromContext(ctx)
		if !ok {
			ic = lineage.NewInvocationContext(agentName(info), method(info))
		}
		rec.After(ic, output)
		return ctx
	}

	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackInput) context.Context {
			return start(ctx, info)
		}).
		OnStartWithStreamInputFn(func(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
			input.Close()
			return start(ctx, info)
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			return finish(ctx, info, output)
		}).
		OnEndWithStreamOutputFn(func(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
			output.Close()
			return finish(ctx, info, streamResult{})
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, _ error) context.Context {
			return finish(ctx, info, nil)
		}).
		Build()
}

// streamResult marks a streamed output; the stream itself belongs to the caller.
type streamResult struct{}

// agentName prefers the node name, then the component type, then the component kind.
func agentName(info *callbacks.RunInfo) string {
	if info == nil {
		return ""
	}
	if info.Name != "" {
		return info.Name
	}
	if info.Type != "" {
		return info.Type
	}
	return string(info.Component)
}

func method(info *callbacks.RunInfo) string {
	if info == nil {
		return ""
	}
	return string(info.Component)
}
