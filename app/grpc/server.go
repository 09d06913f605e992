package grpc

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-mailer/app/dto"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// EmailQueue is the part of queue.EmailQueue the gRPC server exposes.
type EmailQueue interface {
	Enqueue(ctx context.Context, payload queue.EmailPayload, opts ...queue.Option) (*queue.JobHandle, error)
	GetStats(ctx context.Context) (queue.Stats, error)
	PauseQueue(ctx context.Context) error
	ResumeQueue(ctx context.Context) error
	ClearFailedJobs(ctx context.Context) (int, error)
}

type Server struct {
	queue EmailQueue
}

// NewServer constructs a gRPC server handler.
func NewServer(queue EmailQueue) *Server {
	return &Server{queue: queue}
}

// Enqueue validates the request and persists it for delivery.
func (s *Server) Enqueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	msg, err := dto.FromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := msg.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	handle, err := s.queue.Enqueue(ctx, msg.Payload(), msg.QueueOptions()...)
	if err != nil {
		return nil, toStatus(err, "failed to queue email")
	}

	return structpb.NewStruct(map[string]interface{}{"job_id": handle.ID})
}

func (s *Server) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats, err := s.queue.GetStats(ctx)
	if err != nil {
		return nil, toStatus(err, "failed to read queue stats")
	}
	return structpb.NewStruct(map[string]interface{}{
		"waiting":   stats.Waiting,
		"active":    stats.Active,
		"completed": stats.Completed,
		"failed":    stats.Failed,
		"delayed":   stats.Delayed,
		"paused":    stats.Paused,
	})
}

func (s *Server) PauseQueue(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.queue.PauseQueue(ctx); err != nil {
		return nil, toStatus(err, "failed to pause queue")
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) ResumeQueue(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.queue.ResumeQueue(ctx); err != nil {
		return nil, toStatus(err, "failed to resume queue")
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) ClearFailedJobs(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	n, err := s.queue.ClearFailedJobs(ctx)
	if err != nil {
		return nil, toStatus(err, "failed to clear failed jobs")
	}
	return structpb.NewStruct(map[string]interface{}{"cleared": n})
}

func toStatus(err error, fallback string) error {
	switch {
	case errors.Is(err, queue.ErrInvalidPayload), errors.Is(err, queue.ErrInvalidOptions):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, queue.ErrQueueUnavailable):
		return status.Error(codes.Unavailable, "queue unavailable")
	default:
		return status.Error(codes.Internal, fallback)
	}
}
