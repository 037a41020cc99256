package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/reflection"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"ai-agent/internal/orchestrator"
)

type Options struct {
	Addr           string
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
}

// Server exposes the orchestrator as agent.v1.AgentService.
type Server struct {
	svc    orchestrator.Service
	log    *slog.Logger
	opts   Options
	grpc   *grpc.Server
	health *health.Server
}

func NewServer(svc orchestrator.Service, log *slog.Logger, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 180 * time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	log = log.With("component", "rpc")
	s := &Server{
		svc:    svc,
		log:    log,
		opts:   opts,
		health: health.NewServer(),
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoveryInterceptor(log),
		loggingInterceptor(log),
	))
	RegisterAgentServiceServer(s.grpc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *Server) Name() string { return "rpc" }

// Generate implements AgentServiceServer.
func (s *Server) Generate(ctx context.Context, in *GenerateRequest) (*GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	res, err := s.svc.Generate(ctx, toGenerationRequest(in))
	if err != nil {
		return nil, toStatus(err)
	}
	return &GenerateResponse{
		Text:              res.Text,
		Structured:        res.Structured,
		ParseError:        res.ParseError,
		LatencyMs:         res.LatencyMS,
		Model:             res.Model,
		RunID:             res.RunID,
		Attempts:          int32(res.Attempts),
		PromptTokens:      int32(res.PromptTokens),
		CompletionTokens:  int32(res.CompletionTokens),
		RetrievedSnippets: int32(res.RetrievedSnippets),
	}, nil
}

// RejectMalformed hands an undecodable request to the orchestrator so it is
// tracked like any other invalid request.
func (s *Server) RejectMalformed(ctx context.Context, in *GenerateRequest, cause error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	s.log.WarnContext(ctx, "malformed request", "method", GenerateMethod, "err", cause)
	return toStatus(s.svc.Reject(ctx, toGenerationRequest(in), cause))
}

func toGenerationRequest(in *GenerateRequest) orchestrator.GenerationRequest {
	req := orchestrator.GenerationRequest{
		UserMessage:      in.UserMessage,
		SystemPrompt:     in.SystemPrompt,
		ContextJSON:      in.ContextJSON,
		StructuredOutput: in.StructuredOutput,
		OutputSchema:     in.OutputSchema,
	}
	if a := in.AgentSettings; a != nil {
		req.AgentSettings = orchestrator.AgentSettings{
			ModelName:   a.ModelName,
			Temperature: a.Temperature,
			MaxTokens:   int(a.MaxTokens),
		}
	}
	return req
}

// toStatus maps orchestrator errors onto gRPC status codes. Only the
// client-safe message crosses the wire.
func toStatus(err error) error {
	var e *orchestrator.Error
	if !errors.As(err, &e) {
		return status.Error(codes.Internal, "internal error")
	}
	switch e.Code {
	case orchestrator.CodeInvalidRequest:
		return status.Error(codes.InvalidArgument, e.Message)
	case orchestrator.CodeBackendUnavailable:
		return status.Error(codes.Unavailable, e.Message)
	case orchestrator.CodeBackendRejected:
		return status.Error(codes.FailedPrecondition, e.Message)
	case orchestrator.CodeCancelled:
		return status.Error(codes.Canceled, e.Message)
	case orchestrator.CodeDeadlineExceeded:
		return status.Error(codes.DeadlineExceeded, e.Message)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// Serve listens on Addr until ctx is cancelled, then stops gracefully within
// ShutdownGrace.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("rpc listen %s: %w", s.opts.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rpc listening", "addr", ln.Addr().String())
		errCh <- s.grpc.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("rpc serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("rpc shutting down", "grace", s.opts.ShutdownGrace.String())
	s.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	timer := time.NewTimer(s.opts.ShutdownGrace)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		s.log.Warn("rpc graceful stop timed out, forcing")
		s.grpc.Stop()
		<-stopped
	}
	<-errCh
	return nil
}
