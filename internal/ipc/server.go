package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"foreman/internal/daemon"
	"foreman/internal/logging"
	"foreman/internal/protocol"
	"foreman/internal/router"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName("Foreman", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.LockPath = status.LockPath
	resp.StatsDBPath = status.StatsDBPath
	resp.Workers = make([]WorkerInfo, 0, len(status.Workers))
	for _, ws := range status.Workers {
		resp.Workers = append(resp.Workers, WorkerInfo{
			ID:           ws.ID,
			State:        ws.State,
			Busy:         ws.Busy,
			Roles:        ws.Roles,
			LastActivity: ws.LastActivity,
		})
	}
	resp.Metrics = make([]ActionMetric, 0, len(status.Metrics))
	for _, m := range status.Metrics {
		resp.Metrics = append(resp.Metrics, ActionMetric{
			Action:        m.Action,
			Count:         m.Count,
			TotalDuration: m.TotalDuration.String(),
		})
	}
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	s.logger.Debug("submission requested",
		logging.String(logging.FieldAction, req.Action))
	result, err := s.daemon.Submit(s.ctx, protocol.NewCommand(req.Action, req.Params), router.ParsePriority(req.Priority))
	if err != nil {
		return err
	}
	resp.Status = result.Status
	resp.Complete = result.Complete
	resp.Message = result.Message
	resp.Fields = make(map[string]any, len(result.Fields))
	for key, raw := range result.Fields {
		var value any
		if uerr := json.Unmarshal(raw, &value); uerr == nil {
			resp.Fields[key] = value
		}
	}
	return nil
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	result, err := s.daemon.Broadcast(s.ctx, protocol.NewCommand(protocol.ActionPing, nil))
	if err != nil {
		return err
	}
	resp.Status = result.Status
	resp.Message = result.Message
	return nil
}

func (s *service) Stats(req StatsRequest, resp *StatsResponse) error {
	summaries, err := s.daemon.StatsSummaries(s.ctx)
	if err != nil {
		return err
	}
	resp.Actions = make([]ActionHistory, 0, len(summaries))
	for _, summary := range summaries {
		resp.Actions = append(resp.Actions, ActionHistory{
			Action:     summary.Action,
			Category:   summary.Category,
			Executions: summary.Executions,
			Failures:   summary.Failures,
			Timeouts:   summary.Timeouts,
			AverageMS:  summary.AverageDuration().Milliseconds(),
			LastRun:    summary.LastRun,
		})
	}
	recent, err := s.daemon.RecentExecutions(s.ctx, req.RecentLimit)
	if err != nil {
		return err
	}
	resp.Recent = make([]ExecutionInfo, 0, len(recent))
	for _, rec := range recent {
		resp.Recent = append(resp.Recent, ExecutionInfo{
			SubmissionID: rec.SubmissionID,
			Action:       rec.Action,
			Category:     rec.Category,
			WorkerID:     rec.WorkerID,
			Outcome:      rec.Outcome,
			DurationMS:   rec.Duration.Milliseconds(),
			StartedAt:    rec.StartedAt,
		})
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	// Stop asynchronously so the RPC reply reaches the client before the
	// process begins tearing down.
	go func() {
		time.Sleep(50 * time.Millisecond)
		s.daemon.Stop()
	}()
	resp.Stopped = true
	return nil
}
