package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix roots every subject the service uses.
const DefaultSubjectPrefix = "vlab.avamar"

// SubmitSubject is where workers take new tasks, as one queue group.
func SubmitSubject(prefix string) string {
	return prefix + ".submit"
}

// StatusSubject is where a single worker answers status queries.
func StatusSubject(prefix, workerID string) string {
	return prefix + ".status." + workerID
}

// SubmitReply answers a submit request.
type SubmitReply struct {
	Handle string `json:"handle,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StatusRequest asks for a task's record.
type StatusRequest struct {
	Handle string `json:"handle"`
}

// StatusReply answers a status request.
type StatusReply struct {
	Record *Record `json:"record,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Connect dials NATS, reconnecting forever and logging connection changes.
func Connect(url, name string, log *zap.SugaredLogger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warnf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// taskService is the worker surface the server exposes.
type taskService interface {
	ID() string
	Submit(ctx context.Context, req Request) (string, error)
	Status(ctx context.Context, handle string) (Record, error)
}

// Server answers submit and status requests for one worker.
type Server struct {
	worker taskService
	log    *zap.SugaredLogger
	subs   []*nats.Subscription
}

// Serve subscribes w to the submit queue group and its status subject.
func Serve(nc *nats.Conn, prefix, queue string, w taskService, log *zap.SugaredLogger) (*Server, error) {
	s := &Server{worker: w, log: log}

	submit, err := nc.QueueSubscribe(SubmitSubject(prefix), queue, func(msg *nats.Msg) {
		s.respond(msg, s.handleSubmit(msg.Data))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", SubmitSubject(prefix), err)
	}
	s.subs = append(s.subs, submit)

	status, err := nc.Subscribe(StatusSubject(prefix, w.ID()), func(msg *nats.Msg) {
		s.respond(msg, s.handleStatus(msg.Data))
	})
	if err != nil {
		_ = submit.Unsubscribe()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", StatusSubject(prefix, w.ID()), err)
	}
	s.subs = append(s.subs, status)

	return s, nil
}

// Close stops answering requests.
func (s *Server) Close() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}

func (s *Server) respond(msg *nats.Msg, reply []byte) {
	if err := msg.Respond(reply); err != nil {
		s.log.Warnf("Failed to reply on %s: %v", msg.Subject, err)
	}
}

func (s *Server) handleSubmit(data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return mustJSON(SubmitReply{Error: fmt.Sprintf("invalid request: %v", err)})
	}

	handle, err := s.worker.Submit(context.Background(), req)
	if err != nil {
		return mustJSON(SubmitReply{Error: err.Error()})
	}
	s.log.Infow("Task accepted", "task", req.Name, "txn_id", req.TxnID, "handle", handle)
	return mustJSON(SubmitReply{Handle: handle})
}

func (s *Server) handleStatus(data []byte) []byte {
	var req StatusRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return mustJSON(StatusReply{Error: fmt.Sprintf("invalid request: %v", err)})
	}

	rec, err := s.worker.Status(context.Background(), req.Handle)
	if err != nil {
		return mustJSON(StatusReply{Error: err.Error()})
	}
	return mustJSON(StatusReply{Record: &rec})
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("tasks: failed to encode reply: %v", err))
	}
	return data
}

// requester is the NATS surface the client needs.
type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Client submits tasks and polls their status over NATS.
type Client struct {
	nc     requester
	prefix string
}

// NewClient returns a Client using subjects under prefix.
func NewClient(nc requester, prefix string) *Client {
	return &Client{nc: nc, prefix: prefix}
}

// Submit sends req to any worker and returns the task handle.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	msg, err := c.nc.RequestWithContext(ctx, SubmitSubject(c.prefix), data)
	if err != nil {
		return "", fmt.Errorf("failed to submit %s: %w", req.Name, err)
	}

	var reply SubmitReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("invalid submit reply: %w", err)
	}
	if reply.Error != "" {
		return "", errors.New(reply.Error)
	}
	return reply.Handle, nil
}

// Status asks the worker that issued handle for the task's record.
func (c *Client) Status(ctx context.Context, handle string) (Record, error) {
	workerID, _, err := ParseHandle(handle)
	if err != nil {
		return Record{}, err
	}

	data, err := json.Marshal(StatusRequest{Handle: handle})
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode request: %w", err)
	}

	msg, err := c.nc.RequestWithContext(ctx, StatusSubject(c.prefix, workerID), data)
	if err != nil {
		return Record{}, fmt.Errorf("failed to query %s: %w", handle, err)
	}

	var reply StatusReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return Record{}, fmt.Errorf("invalid status reply: %w", err)
	}
	if reply.Error != "" {
		return Record{}, errors.New(reply.Error)
	}
	if reply.Record == nil {
		return Record{}, fmt.Errorf("empty status reply for %s", handle)
	}
	return *reply.Record, nil
}

// Wait polls handle every interval until the task finishes or ctx ends.
func (c *Client) Wait(ctx context.Context, handle string, interval time.Duration) (Record, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rec, err := c.Status(ctx, handle)
		if err != nil {
			return Record{}, err
		}
		if rec.Status.Done() {
			return rec, nil
		}

		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-ticker.C:
		}
	}
}
