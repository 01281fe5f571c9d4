package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"stockwatch/internal/models"
	"stockwatch/internal/stream"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

// controlMsg is sent by browser clients to drive the dashboard.
type controlMsg struct {
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Value  json.RawMessage `json:"value,omitempty"`
}

type statusMsg struct {
	Type  string `json:"type"`
	Level string `json:"level"`
	Text  string `json:"text"`
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(r.RemoteAddr, stream.TopicSnapshot, stream.TopicAlert)
	defer s.hub.Unsubscribe(sub)

	replies := make(chan statusMsg, s.cfg.SendBuffer)
	done := make(chan struct{})
	defer close(done)

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("Websocket client connected")

	// writer
	go func() {
		ping := time.NewTicker(s.cfg.PingInterval)
		defer ping.Stop()
		for {
			var err error
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
					return
				}
				err = conn.WriteJSON(ev)
			case msg := <-replies:
				err = conn.WriteJSON(msg)
			case <-ping.C:
				err = conn.WriteMessage(websocket.PingMessage, nil)
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	reply := func(level, text string) {
		select {
		case replies <- statusMsg{Type: "status", Level: level, Text: text}:
		default:
		}
	}
	reply("info", "Connected")

	readTimeout := 2 * s.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		var ctrl controlMsg
		if err := json.Unmarshal(data, &ctrl); err != nil || ctrl.Type != "control" {
			reply("error", "expected a control message")
			continue
		}
		if err := s.control(r.Context(), ctrl); err != nil {
			reply("error", err.Error())
			continue
		}
		reply("success", ctrl.Action)
	}
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("Websocket client disconnected")
}

// control applies one websocket control action.
func (s *Server) control(ctx context.Context, ctrl controlMsg) error {
	str := func() string {
		var v string
		_ = json.Unmarshal(ctrl.Value, &v)
		return v
	}
	switch strings.ToLower(ctrl.Action) {
	case "ticker":
		return s.ctrl.SetTickerFilter(str())
	case "sector":
		return s.ctrl.SetSector(str())
	case "leverage":
		return s.ctrl.SetLeverage(models.LeverageFilter(str()))
	case "clear":
		return s.ctrl.ClearFilters()
	case "sort":
		_, err := s.ctrl.ClickColumn(str())
		return err
	case "reload":
		return s.ctrl.Reload()
	case "interval":
		return s.ctrl.SetRefreshInterval(str())
	case "polling":
		var on bool
		if err := json.Unmarshal(ctrl.Value, &on); err != nil {
			return err
		}
		return s.ctrl.SetPolling(on)
	case "update":
		return s.ctrl.ForceUpdate(ctx, false)
	case "force_update":
		return s.ctrl.ForceUpdate(ctx, true)
	case "dismiss":
		return s.ctrl.DismissBanner()
	case "reset_notifications":
		s.ctrl.ResetNotifications()
		return nil
	default:
		return errUnknownAction(ctrl.Action)
	}
}

type errUnknownAction string

func (e errUnknownAction) Error() string { return "unknown action " + string(e) }
