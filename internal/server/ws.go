package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ChizhovVadim/CounterSearch/pkg/common"
)

const wsIdlePingInterval = 30 * time.Second

type wsMessage struct {
	Type    string          `json:"type"`
	Session string          `json:"session,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type infoPayload struct {
	Depth    int       `json:"depth"`
	SelDepth int       `json:"seldepth"`
	Nodes    int64     `json:"nodes"`
	TimeMs   int64     `json:"time_ms"`
	HashFull int       `json:"hashfull"`
	Lines    []lineDTO `json:"lines"`
}

// analyzeSession is one websocket client. It runs at most one search at a
// time; a new analyze request cancels the running one.
type analyzeSession struct {
	server *Server
	id     string
	send   chan []byte

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *Server) serveAnalyzeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	var session = &analyzeSession{
		server: s,
		id:     uuid.NewString(),
		send:   make(chan []byte, 16),
	}
	var logger = s.logger.With().Str("session", session.id).Logger()
	logger.Debug().Msg("analyze session opened")
	session.sendMessage("hello", nil)

	var writerDone = make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		if err := writeWSWithHeartbeat(conn, session.send); err != nil {
			logger.Debug().Err(err).Msg("websocket write failed")
		}
	}()

	for {
		var req struct {
			Type string `json:"type"`
			searchRequest
		}
		if err := conn.ReadJSON(&req); err != nil {
			break
		}
		switch req.Type {
		case "analyze":
			var params, err = req.searchRequest.searchParams()
			if err != nil {
				session.sendMessage("error", errorResponse{Error: err.Error()})
				continue
			}
			session.start(params)
		case "stop":
			session.stop()
		default:
			session.sendMessage("error", errorResponse{Error: "unknown message type " + req.Type})
		}
	}

	session.stop()
	session.wg.Wait()
	close(session.send)
	<-writerDone
	logger.Debug().Msg("analyze session closed")
}

func (sess *analyzeSession) start(params common.SearchParams) {
	sess.stop()
	sess.wg.Wait()

	var ctx, cancel = context.WithCancel(context.Background())
	sess.mu.Lock()
	sess.cancel = cancel
	sess.mu.Unlock()

	params.Progress = func(si common.SearchInfo) {
		sess.sendMessage("info", infoPayload{
			Depth:    si.Depth,
			SelDepth: si.SelDepth,
			Nodes:    si.Nodes,
			TimeMs:   si.Time.Milliseconds(),
			HashFull: si.HashFull,
			Lines:    newSearchResponse(si).Lines,
		})
	}
	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		defer cancel()
		var info, err = sess.server.engine.Search(ctx, params)
		if err != nil {
			sess.server.logger.Error().Err(err).Str("session", sess.id).Msg("search failed")
			sess.sendMessage("error", errorResponse{Error: err.Error()})
			return
		}
		sess.sendMessage("bestmove", newSearchResponse(info))
	}()
}

func (sess *analyzeSession) stop() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.cancel != nil {
		sess.cancel()
		sess.cancel = nil
	}
}

// sendMessage drops the message when the client does not keep up.
func (sess *analyzeSession) sendMessage(messageType string, payload any) {
	var msg = wsMessage{Type: messageType, Session: sess.id}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case sess.send <- data:
	default:
	}
}

func writeWSWithHeartbeat(conn *websocket.Conn, send <-chan []byte) error {
	ticker := time.NewTicker(wsIdlePingInterval)
	defer ticker.Stop()
	lastWrite := time.Now()
	pingPayload := mustMarshal(wsMessage{Type: "ping"})

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return nil
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < wsIdlePingInterval {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, pingPayload); err != nil {
				return err
			}
			lastWrite = time.Now()
		}
	}
}
