package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"agentd/pkg/events"
	"agentd/pkg/proto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// handleTaskSocket runs one task per websocket channel. The client sends a
// single initiating TaskRequest; the server streams events until the task is
// terminal. A second init on an active channel is rejected with an error
// event; the channel stays open for the running task. Disconnecting does not
// cancel the task: staged changes stay available and approval can arrive via
// REST.
func (s *Server) handleTaskSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var req proto.TaskRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Warn("failed to read task request: %v", err)
		return
	}

	stream := events.NewStream()
	task, err := s.controller.StartTask(context.Background(), req, stream)
	if err != nil {
		_ = conn.WriteJSON(proto.MustEvent(proto.EventError, proto.ErrorData{
			Message: err.Error(),
			Code:    proto.ErrCodeInternal,
		}))
		return
	}
	s.logger.Info("Channel bound to task %s", task.ID)

	// Close the stream once the task reaches a terminal phase so the writer
	// loop drains and exits.
	go func() {
		<-task.Done()
		stream.Close()
	}()

	// Reader: the protocol allows no further client messages. Extra inits
	// are rejected through the stream so there is a single websocket writer.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			var extra proto.TaskRequest
			if err := conn.ReadJSON(&extra); err != nil {
				return
			}
			s.logger.Warn("Rejecting second init on channel bound to task %s", task.ID)
			stream.Emit(proto.MustEvent(proto.EventError, proto.ErrorData{
				Message: "a task is already running on this channel",
				Code:    proto.ErrCodeTransport,
			}))
		}
	}()

	for env := range stream.Events() {
		if err := conn.WriteJSON(env); err != nil {
			s.logger.Info("Client for task %s went away: %v", task.ID, err)
			// Drain so the emitter never blocks; the task runs on.
			for range stream.Events() { //nolint:revive // intentional drain
			}
			return
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
