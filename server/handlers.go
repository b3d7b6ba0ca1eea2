// File: server/handlers.go
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/lguibr/luactor/actor"
	"github.com/lguibr/luactor/message"
	"golang.org/x/net/websocket"
)

const maxBodySize = 1 << 20

// requestMessage describes an HTTP request as the table handed to the handle phase:
// {path, method, query, body} plus json when the body decodes as JSON.
func requestMessage(r *http.Request, body []byte) message.Table {
	query := message.Table{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = message.String(values[0])
		}
	}
	req := message.Table{
		"path":   message.String(r.URL.Path),
		"method": message.String(r.Method),
		"query":  query,
		"body":   message.String(body),
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") && len(body) > 0 {
		var doc interface{}
		if err := json.Unmarshal(body, &doc); err == nil {
			if v, err := message.FromAny(doc); err == nil {
				req["json"] = v
			}
		}
	}
	return req
}

// HandleRequest asks the script actor with every GET or POST and writes its reply.
// A String reply is sent as text, anything else as JSON. A suspended handler answers
// 202 with its continuation id.
func (s *Server) HandleRequest() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				fmt.Printf("PANIC recovered in HandleRequest: %v\nStack trace:\n%s\n", rec, string(debug.Stack()))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}

		reply, err := actor.Ask(s.engine, s.target, requestMessage(r, body), s.timeout)
		if err != nil {
			fmt.Printf("HandleRequest: ask for %s %s failed: %v\n", r.Method, r.URL.Path, err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		switch v := reply.(type) {
		case message.String:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, err = io.WriteString(w, string(v))
		default:
			status := http.StatusOK
			if _, suspended := v.(message.ThreadYield); suspended {
				status = http.StatusAccepted
			}
			data, marshalErr := message.Marshal(v)
			if marshalErr != nil {
				http.Error(w, marshalErr.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, err = w.Write(data)
		}
		if err != nil {
			fmt.Println("Error writing HTTP reply:", err)
		}
	}
}

// HandleSubscribe serves a WebSocket: every JSON frame is asked to the script
// actor and its reply is written back as a JSON frame.
func (s *Server) HandleSubscribe() func(ws *websocket.Conn) {
	return func(ws *websocket.Conn) {
		connectionAddr := ws.Request().RemoteAddr
		fmt.Printf("HandleSubscribe: New connection from %s\n", connectionAddr)
		s.openConnection(ws)

		defer func() {
			if r := recover(); r != nil {
				fmt.Printf("PANIC recovered in HandleSubscribe/readLoop for %s: %v\nStack trace:\n%s\n", connectionAddr, r, string(debug.Stack()))
			}
			s.closeConnection(ws)
			fmt.Printf("HandleSubscribe: Connection %s closed.\n", connectionAddr)
		}()

		s.readLoop(ws, connectionAddr)
	}
}

type frameError struct {
	Error string `json:"error"`
}

func (s *Server) readLoop(ws *websocket.Conn, connectionAddr string) {
	for {
		var frame interface{}
		if err := websocket.JSON.Receive(ws, &frame); err != nil {
			if err != io.EOF && !strings.Contains(err.Error(), "closed") {
				fmt.Printf("ReadLoop: Error receiving from %s: %v\n", connectionAddr, err)
			}
			return
		}

		msg, err := message.FromAny(frame)
		if err != nil {
			if sendErr := websocket.JSON.Send(ws, frameError{Error: err.Error()}); sendErr != nil {
				return
			}
			continue
		}

		reply, err := actor.Ask(s.engine, s.target, msg, s.timeout)
		if err != nil {
			if sendErr := websocket.JSON.Send(ws, frameError{Error: err.Error()}); sendErr != nil {
				return
			}
			continue
		}

		data, err := message.Marshal(reply)
		if err != nil {
			data, _ = json.Marshal(frameError{Error: err.Error()})
		}
		if err := websocket.Message.Send(ws, string(data)); err != nil {
			fmt.Printf("ReadLoop: Error writing to %s: %v\n", connectionAddr, err)
			return
		}
	}
}
