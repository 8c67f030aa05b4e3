package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	contractx "github.com/fireflyframework/genai-data/agent/contract"
	"github.com/fireflyframework/genai-data/agent/lineage"
	"github.com/fireflyframework/genai-data/agent/middleware"
	"github.com/fireflyframework/genai-data/agent/steps"
	"github.com/google/uuid"
)

// MetadataLineageIDs lists the lineage id of every step invocation of a run.
const MetadataLineageIDs = "lineage_ids"

// Step is one stage of a pipeline; its output becomes the next stage's input.
type Step interface {
	Execute(ctx context.Context, pc *steps.PipelineContext, inputs map[string]any) (map[string]any, error)
}

type Request struct {
	CorrelationID string         `json:"correlation_id"`
	Inputs        map[string]any `json:"inputs"`
}

type Response struct {
	CorrelationID string         `json:"correlation_id"`
	Result        map[string]any `json:"result"`
	Metadata      map[string]any `json:"metadata"`
}

// Pipeline runs its steps as a linear eino graph with lineage callbacks attached.
type Pipeline struct {
	name    string
	handler callbacks.Handler
	runner  compose.Runnable[Request, Response]
	newID   func() string
}

func New(ctx context.Context, name string, rec *lineage.Recorder, stages ...Step) (*Pipeline, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: pipeline name is required", contractx.ErrValidation)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: pipeline %s has no steps", contractx.ErrValidation, name)
	}
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("%w: pipeline %s step %d is nil", contractx.ErrValidation, name, i)
		}
	}

	p := &Pipeline{
		name:  name,
		newID: uuid.NewString,
	}
	if rec != nil {
		p.handler = middleware.NewLineageHandler(rec)
	}

	runner, err := compileGraph(ctx, name, stages)
	if err != nil {
		return nil, err
	}
	p.runner = runner
	return p, nil
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) Run(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.CorrelationID) == "" {
		req.CorrelationID = p.newID()
	}

	var opts []compose.Option
	if p.handler != nil {
		opts = append(opts, compose.WithCallbacks(p.handler))
	}

	out, err := p.runner.Invoke(ctx, req, opts...)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %s: %w", contractx.ErrPipeline, p.name, err)
	}
	return out, nil
}

type runState struct {
	pc   *steps.PipelineContext
	data map[string]any
}

func compileGraph(ctx context.Context, name string, stages []Step) (compose.Runnable[Request, Response], error) {
	graph := compose.NewGraph[Request, Response]()

	if err := graph.AddLambdaNode("prepare",
		compose.InvokableLambda(func(ctx context.Context, in Request) (*runState, error) {
			return &runState{
				pc:   steps.NewPipelineContext(in.CorrelationID),
				data: in.Inputs,
			}, nil
		}),
		compose.WithNodeName(fmt.Sprintf("%s.prepare", name)),
	); err != nil {
		return nil, fmt.Errorf("add node prepare: %w", err)
	}

	nodes := []string{"prepare"}
	for i, stage := range stages {
		key := fmt.Sprintf("step_%d", i)
		stage := stage
		if err := graph.AddLambdaNode(key,
			compose.InvokableLambda(func(ctx context.Context, in *runState) (*runState, error) {
				return runStep(ctx, stage, in)
			}),
			compose.WithNodeName(fmt.Sprintf("%s.%s", name, key)),
		); err != nil {
			return nil, fmt.Errorf("add node %s: %w", key, err)
		}
		nodes = append(nodes, key)
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, in *runState) (Response, error) {
			return Response{
				CorrelationID: in.pc.CorrelationID,
				Result:        in.data,
				Metadata:      in.pc.Metadata(),
			}, nil
		}),
		compose.WithNodeName(fmt.Sprintf("%s.finalize", name)),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}
	nodes = append(nodes, "finalize")

	edges := [][2]string{{compose.START, nodes[0]}}
	for i := 1; i < len(nodes); i++ {
		edges = append(edges, [2]string{nodes[i-1], nodes[i]})
	}
	edges = append(edges, [2]string{nodes[len(nodes)-1], compose.END})

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(name))
	if err != nil {
		return nil, fmt.Errorf("compile pipeline graph %s: %w", name, err)
	}
	return runner, nil
}

func runStep(ctx context.Context, stage Step, in *runState) (*runState, error) {
	if in == nil || in.pc == nil {
		return nil, errors.New("pipeline state is missing")
	}

	out, err := stage.Execute(ctx, in.pc, in.data)
	if err != nil {
		return nil, err
	}

	if ic, ok := middleware.InvocationFromContext(ctx); ok && ic.LineageID != "" {
		ids, _ := in.pc.Get(MetadataLineageIDs)
		list, _ := ids.([]string)
		in.pc.Set(MetadataLineageIDs, append(list, ic.LineageID))
	}

	return &runState{pc: in.pc, data: out}, nil
}
