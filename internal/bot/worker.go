package bot

import (
	"context"

	"github.com/striezel/botvinnik-sub001/pkg/log"
)

// dispatch hands a task to the worker owning the task's room, creating
// the worker on first contact. Workers keep per-room arrival order;
// distinct rooms proceed independently. Only the Run goroutine calls
// this, so the workers map needs no lock.
func (b *Bot) dispatch(t task) {
	queue, ok := b.workers[t.roomID]
	if !ok {
		queue = make(chan task, b.queueSize)
		b.workers[t.roomID] = queue
		b.workerWG.Add(1)
		go b.roomWorker(t.roomID, queue)
	}

	select {
	case queue <- t:
	default:
		log.WithFields(map[string]interface{}{
			"room_id": t.roomID,
			"command": t.command,
		}).Warn("room command queue full, dropping command")
	}
}

func (b *Bot) roomWorker(roomID string, queue chan task) {
	defer b.workerWG.Done()
	for t := range queue {
		b.handleTask(t)
	}
	log.WithField("room_id", roomID).Debug("room worker drained")
}

func (b *Bot) handleTask(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), b.commandTimeout)
	defer cancel()

	reply, handled := b.router.Handle(ctx, t.command, t.body, t.userID, t.roomID, t.serverTS)
	if !handled {
		return
	}
	if b.metrics != nil {
		b.metrics.Commands.WithLabelValues(t.command).Inc()
	}
	if reply.IsEmpty() {
		return
	}

	b.chat.Reply(t.roomID, t.command, reply.Body)
	if err := b.client.SendMessage(t.roomID, reply); err != nil {
		if b.metrics != nil {
			b.metrics.SendFailures.Inc()
		}
		log.WithError(err).WithFields(map[string]interface{}{
			"room_id": t.roomID,
			"command": t.command,
		}).Error("failed to send reply")
		return
	}
	if b.metrics != nil {
		b.metrics.MessagesSent.Inc()
	}
}

// drainWorkers closes every room queue and waits until queued commands
// have been handled and their replies sent.
func (b *Bot) drainWorkers() {
	for _, queue := range b.workers {
		close(queue)
	}
	b.workerWG.Wait()
}
