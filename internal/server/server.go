// Package server implements the main receive/dispatch/send loop
// described in spec.md §4.8/§5: one blocking receive, one reply-cache
// lookup, one dispatch, one send, repeat, until a termination signal
// is observed.
package server

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/megapearl/etherdfs/internal/dispatch"
	"github.com/megapearl/etherdfs/internal/doserr"
	"github.com/megapearl/etherdfs/internal/elog"
	"github.com/megapearl/etherdfs/internal/frame"
	"github.com/megapearl/etherdfs/internal/linkdriver"
	"github.com/megapearl/etherdfs/internal/replycache"
)

// Server owns the link driver, the dispatcher, and the reply cache,
// and drives the single-threaded receive loop.
type Server struct {
	Link    linkdriver.Driver
	Dispatch *dispatch.Dispatcher
	Replies *replycache.Cache

	terminate atomic.Bool
}

// New constructs a Server around an already-open link driver.
func New(link linkdriver.Driver, disp *dispatch.Dispatcher) *Server {
	return &Server{
		Link:     link,
		Dispatch: disp,
		Replies:  replycache.New(),
	}
}

// Stop sets the one-way termination latch; the receive loop observes
// it at the top of its next iteration (spec.md §5's cancellation
// model — no forcible interruption of an in-flight dispatch).
func (s *Server) Stop() {
	s.terminate.Store(true)
}

// Run drives the loop until Stop is called or the link driver reports
// a non-timeout error.
func (s *Server) Run() error {
	localMAC := s.Link.LocalMAC()
	buf := make([]byte, frame.MaxFrameLen)

	for !s.terminate.Load() {
		n, err := s.Link.Recv(buf)
		if err == linkdriver.ErrTimeout {
			continue
		}
		if err != nil {
			return err
		}

		elog.Debugf("recv %d bytes:\n%s", n, frame.DumpHex(buf[:n]))

		req, ok := frame.Parse(buf[:n], localMAC)
		if !ok {
			continue
		}

		if cached, hit := s.Replies.Lookup(req.SrcMAC, req.Seq); hit {
			elog.Debugf("retransmit from %x seq %d: replaying cached reply", req.SrcMAC, req.Seq)
			_ = s.Link.Send(cached)
			continue
		}

		reply := frame.NewReply(req, localMAC)
		if err := s.Dispatch.Handle(req, reply); err != nil {
			if !doserr.IsDrop(err) {
				elog.WithFields(logrus.Fields{
					"mac":    fmt.Sprintf("%x", req.SrcMAC),
					"seq":    req.Seq,
					"drive":  req.Drive,
					"opcode": req.Opcode,
				}).Warn(err)
			}
			s.Replies.Poison(req.SrcMAC, req.Seq)
			continue
		}

		out := reply.Finish(req.ChecksumOn)
		elog.Debugf("send %d bytes:\n%s", len(out), frame.DumpHex(out))
		if err := s.Link.Send(out); err != nil {
			elog.Warnf("send to %x: %v", req.SrcMAC, err)
			continue
		}
		s.Replies.Store(req.SrcMAC, req.Seq, out)
	}
	return nil
}
