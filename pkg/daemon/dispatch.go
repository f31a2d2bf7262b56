package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helix-kb/helixd/pkg/protocol"
	"github.com/helix-kb/helixd/pkg/syncqueue"
)

// dispatcher maps a decoded, version-valid request onto exactly one sync
// queue operation and shapes the response payload. It is the only place
// that knows the command-to-queue mapping.
type dispatcher struct {
	queue     *syncqueue.Queue
	version   string
	startTime time.Time
	shutdown  func()
	log       *zap.Logger
}

func (d *dispatcher) handle(ctx context.Context, req *protocol.Request) protocol.Response {
	switch req.Command.Type {
	case protocol.CmdPing:
		return protocol.OKResponse(req.ID, protocol.PingPayload{
			Type:          protocol.CmdPing,
			DaemonVersion: d.version,
		})

	case protocol.CmdEnqueueSync:
		syncID, isNew := d.queue.Enqueue(req.RepoRoot, req.Tool, req.Command.Directory, req.Command.Force)
		snap, ok := d.queue.Get(syncID)
		if !ok {
			return protocol.ErrorResponse(req.ID, protocol.CodeInternalError, "failed to create sync job")
		}
		return protocol.OKResponse(req.ID, protocol.EnqueueSyncPayload{
			Type:       protocol.CmdEnqueueSync,
			SyncID:     syncID,
			IsNew:      isNew,
			QueuedAtMS: snap.QueuedAt.UnixMilli(),
		})

	case protocol.CmdWaitSync:
		timeout := time.Duration(req.Command.TimeoutMS) * time.Millisecond
		snap, ok := d.queue.Wait(ctx, req.Command.SyncID, timeout)
		if !ok {
			return protocol.ErrorResponse(req.ID, protocol.CodeTimeout,
				fmt.Sprintf("timeout waiting for sync %s", req.Command.SyncID))
		}
		return protocol.OKResponse(req.ID, protocol.WaitSyncPayload{
			Type:   protocol.CmdWaitSync,
			SyncID: snap.SyncID,
			State:  string(snap.State),
			Stats:  snap.Stats,
		})

	case protocol.CmdStatus:
		snaps := d.queue.ListQueues()
		now := time.Now()
		queues := make([]protocol.QueueEntry, 0, len(snaps))
		for _, s := range snaps {
			queues = append(queues, protocol.QueueEntry{
				RepoRoot:  s.Key.RepoRoot,
				Tool:      s.Key.Tool,
				Directory: s.Key.Directory,
				SyncID:    s.SyncID,
				State:     string(s.State),
				AgeMS:     now.Sub(s.QueuedAt).Milliseconds(),
			})
		}
		return protocol.OKResponse(req.ID, protocol.StatusPayload{
			Type:     protocol.CmdStatus,
			Queues:   queues,
			UptimeMS: time.Since(d.startTime).Milliseconds(),
		})

	case protocol.CmdShutdown:
		// Fire the shutdown signal and answer immediately; in-flight
		// connections are not drained.
		d.log.Info("shutdown requested",
			zap.String("tool", req.Tool),
			zap.String("reason", req.Command.Reason))
		d.shutdown()
		return protocol.OKResponse(req.ID, protocol.ShutdownPayload{Type: protocol.CmdShutdown})

	default:
		// Unreachable: DecodeRequest validates the command type.
		return protocol.ErrorResponse(req.ID, protocol.CodeInvalidRequest,
			fmt.Sprintf("unknown command type: %q", req.Command.Type))
	}
}
