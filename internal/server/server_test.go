package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/ChizhovVadim/CounterSearch/pkg/engine"
	material "github.com/ChizhovVadim/CounterSearch/pkg/eval/material"
)

func newTestServer(t *testing.T) *httptest.Server {
	var eng = engine.NewEngine(func() interface{} {
		return material.NewEvaluationService()
	}, zerolog.Nop())
	eng.Options.Hash = 4
	eng.Options.Threads = 2
	var ts = httptest.NewServer(New(eng, zerolog.Nop()).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func postSearch(t *testing.T, ts *httptest.Server, body string) (*http.Response, searchResponse) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/search", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var result searchResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatal(err)
		}
	}
	return resp, result
}

func TestSearchEndpoint(t *testing.T) {
	is := is.New(t)
	var ts = newTestServer(t)

	var resp, result = postSearch(t, ts, `{"fen":"startpos","moves":["e2e4"],"depth":4,"multipv":2}`)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(result.BestMove != "")
	is.True(result.ID != "")
	is.Equal(result.Depth, 4)
	is.Equal(len(result.Lines), 2)
	is.Equal(result.Lines[0].Move, result.BestMove)

	resp, result = postSearch(t, ts, `{"fen":"6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1","depth":3}`)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(result.BestMove, "a1a8")
	is.True(result.Score.Mate != nil)
	is.Equal(*result.Score.Mate, 1)
}

func TestSearchEndpointErrors(t *testing.T) {
	is := is.New(t)
	var ts = newTestServer(t)
	for _, body := range []string{
		`not json`,
		`{"fen":"bad fen"}`,
		`{"moves":["e2e5"]}`,
		`{"depth":-1}`,
	} {
		var resp, _ = postSearch(t, ts, body)
		is.Equal(resp.StatusCode, http.StatusBadRequest)
	}
}

func TestTransTableEndpoint(t *testing.T) {
	is := is.New(t)
	var ts = newTestServer(t)
	postSearch(t, ts, `{"depth":3}`)

	resp, err := http.Get(ts.URL + "/api/tt")
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusOK)
	var result ttResponse
	is.NoErr(json.NewDecoder(resp.Body).Decode(&result))
	is.Equal(result.Megabytes, 4)
	is.Equal(result.Size, "4.0 MiB")
	is.Equal(result.BucketSize, 4)
	is.Equal(result.Buckets, 4<<20/64)
	is.Equal(result.Generation, uint8(1))
}

func TestAnalyzeWebsocket(t *testing.T) {
	is := is.New(t)
	var ts = newTestServer(t)
	var url = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/analyze"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	is.NoErr(err)
	defer conn.Close()
	is.NoErr(conn.SetReadDeadline(time.Now().Add(10 * time.Second)))

	var hello wsMessage
	is.NoErr(conn.ReadJSON(&hello))
	is.Equal(hello.Type, "hello")
	is.True(hello.Session != "")

	is.NoErr(conn.WriteJSON(map[string]any{"type": "bogus"}))
	var msg wsMessage
	is.NoErr(conn.ReadJSON(&msg))
	is.Equal(msg.Type, "error")

	is.NoErr(conn.WriteJSON(map[string]any{"type": "analyze", "fen": "startpos", "depth": 3}))
	for {
		is.NoErr(conn.ReadJSON(&msg))
		if msg.Type == "bestmove" {
			break
		}
		is.Equal(msg.Type, "info")
	}
	is.Equal(msg.Session, hello.Session)
	var result searchResponse
	is.NoErr(json.Unmarshal(msg.Payload, &result))
	is.True(result.BestMove != "")
	is.Equal(result.Depth, 3)

	// an infinite-looking search is ended by stop
	is.NoErr(conn.WriteJSON(map[string]any{"type": "analyze", "movetime": 60000}))
	is.NoErr(conn.WriteJSON(map[string]any{"type": "stop"}))
	for {
		is.NoErr(conn.ReadJSON(&msg))
		if msg.Type == "bestmove" {
			break
		}
	}
}
