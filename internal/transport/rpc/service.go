package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	ServiceName    = "agent.v1.AgentService"
	GenerateMethod = "/" + ServiceName + "/Generate"
)

// The structs below are the Go view of the agent.proto messages; their JSON
// tags are the proto field names.
type AgentSettings struct {
	ModelName   string   `json:"model_name,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int32    `json:"max_tokens,omitempty"`
}

type GenerateRequest struct {
	UserMessage      string         `json:"user_message"`
	SystemPrompt     string         `json:"system_prompt,omitempty"`
	ContextJSON      string         `json:"context_json,omitempty"`
	AgentSettings    *AgentSettings `json:"agent_settings,omitempty"`
	StructuredOutput bool           `json:"structured_output,omitempty"`
	OutputSchema     string         `json:"output_schema,omitempty"`
}

type GenerateResponse struct {
	Text              string         `json:"text"`
	Structured        map[string]any `json:"structured,omitempty"`
	ParseError        bool           `json:"parse_error,omitempty"`
	LatencyMs         float64        `json:"latency_ms"`
	Model             string         `json:"model"`
	RunID             string         `json:"run_id"`
	Attempts          int32          `json:"attempts"`
	PromptTokens      int32          `json:"prompt_tokens"`
	CompletionTokens  int32          `json:"completion_tokens"`
	RetrievedSnippets int32          `json:"retrieved_snippets"`
}

// AgentServiceServer is the server API of agent.v1.AgentService.
type AgentServiceServer interface {
	Generate(ctx context.Context, in *GenerateRequest) (*GenerateResponse, error)
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	wire := dynamicpb.NewMessage(requestDesc)
	if err := dec(wire); err != nil {
		return nil, rejectMalformed(ctx, srv, new(GenerateRequest), err)
	}
	in := new(GenerateRequest)
	if err := fromProto(wire, in); err != nil {
		return nil, rejectMalformed(ctx, srv, in, err)
	}

	call := func(ctx context.Context, req any) (any, error) {
		return srv.(AgentServiceServer).Generate(ctx, req.(*GenerateRequest))
	}
	var (
		out any
		err error
	)
	if interceptor == nil {
		out, err = call(ctx, in)
	} else {
		out, err = interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: GenerateMethod}, call)
	}
	if err != nil {
		return nil, err
	}
	msg, err := toProto(out, responseDesc)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return msg, nil
}

// malformedRejecter is implemented by servers that record requests whose
// payload could not be decoded.
type malformedRejecter interface {
	RejectMalformed(ctx context.Context, in *GenerateRequest, cause error) error
}

func rejectMalformed(ctx context.Context, srv any, in *GenerateRequest, cause error) error {
	if r, ok := srv.(malformedRejecter); ok {
		return r.RejectMalformed(ctx, in, cause)
	}
	return status.Error(codes.InvalidArgument, "malformed GenerateRequest")
}

// serviceDesc mirrors api/proto/agent.proto.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/proto/agent.proto",
}

// RegisterAgentServiceServer registers srv on s.
func RegisterAgentServiceServer(s grpc.ServiceRegistrar, srv AgentServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Client calls agent.v1.AgentService. Requests use the proto codec unless
// grpc.CallContentSubtype("json") is passed.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Generate(ctx context.Context, in *GenerateRequest, opts ...grpc.CallOption) (*GenerateResponse, error) {
	req, err := toProto(in, requestDesc)
	if err != nil {
		return nil, err
	}
	reply := dynamicpb.NewMessage(responseDesc)
	if err := c.cc.Invoke(ctx, GenerateMethod, req, reply, opts...); err != nil {
		return nil, err
	}
	out := new(GenerateResponse)
	if err := fromProto(reply, out); err != nil {
		return nil, err
	}
	return out, nil
}
