package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hermes/internal/conversation"
	"hermes/internal/metrics"
	"hermes/internal/pipeline"
	"hermes/internal/service"
)

const (
	maxChatMessageBytes = 8 << 10
	chatWriteTimeout    = 10 * time.Second
)

type chatError struct {
	Error string `json:"error"`
}

func (r *Router) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			return origin == "" || r.allowedOrigin(origin)
		},
	}
}

// chat reads one query per text frame and replies with the payload. History
// lives for the connection only.
func (r *Router) chat(w http.ResponseWriter, req *http.Request) {
	up := r.upgrader()
	conn, err := up.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxChatMessageBytes)

	connID := uuid.NewString()
	logger := r.logger.With().Str("conn_id", connID).Logger()
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()
	logger.Info().Str("remote", req.RemoteAddr).Msg("chat connected")

	history := conversation.NewHistory(r.cfg.HistoryLimit)
	ctx := req.Context()
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("chat read")
			}
			logger.Info().Int("turns", history.Len()).Msg("chat disconnected")
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		query := strings.TrimSpace(string(msg))
		if query == "" {
			if err := r.writeChat(conn, chatError{Error: "query is required"}); err != nil {
				return
			}
			continue
		}

		st, err := r.service.Ask(ctx, "ws", query, history.Turns())
		if err != nil {
			if !errors.Is(err, service.ErrBusy) {
				logger.Error().Err(err).Msg("chat query failed")
			}
			if err := r.writeChat(conn, chatError{Error: err.Error()}); err != nil {
				return
			}
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(chatWriteTimeout)); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, st.Response); err != nil {
			logger.Warn().Err(err).Msg("chat write")
			return
		}
		history.Append(pipeline.TurnFromState(st))
	}
}

func (r *Router) writeChat(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(chatWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
