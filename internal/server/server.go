package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/karmen87/Crypto-Alarm/internal/entity"
	"github.com/karmen87/Crypto-Alarm/internal/service/monitor"
)

// Client protocol, one action/event pair per operation plus the engine's
// price_update / alarm_triggered stream.
const (
	actionAddAsset     = "add_asset"
	actionRemoveAsset  = "remove_asset"
	actionAddAlarm     = "add_alarm"
	actionRemoveAlarm  = "remove_alarm"
	actionRestartAlarm = "restart_alarm"

	eventInitialState   = "initial_state"
	eventAssetAdded     = "asset_added"
	eventAssetRemoved   = "asset_removed"
	eventAlarmAdded     = "alarm_added"
	eventAlarmRemoved   = "alarm_removed"
	eventAlarmRestarted = "alarm_restarted"
	eventError          = "error"
)

type errorPayload struct {
	Message string `json:"message"`
}

type statePayload struct {
	Assets []entity.Asset `json:"assets"`
	Alarms []entity.Alarm `json:"alarms"`
}

// Server exposes the monitor's client operations over a websocket endpoint.
type Server struct {
	hub     *Hub
	monitor *monitor.Monitor

	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

func New(m *monitor.Monitor, hub *Hub, addr string) *Server {
	srv := &Server{
		hub:     hub,
		monitor: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWS)
	srv.httpSrv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return srv
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	slog.Info("server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn)
	s.hub.register <- client

	client.reply(eventInitialState, statePayload{
		Assets: s.monitor.Assets(),
		Alarms: s.monitor.Alarms(),
	})

	// the request context dies with this handler, commands need their own
	go client.writePump()
	go client.readPump(context.Background(), s)
}

type addAssetCmd struct {
	Pair string `json:"pair"`
}

type removeAssetCmd struct {
	Ticker string `json:"ticker"`
}

type addAlarmCmd struct {
	Type        entity.AlarmType   `json:"type"`
	Ticker      string             `json:"ticker"`
	TargetPrice float64            `json:"targetPrice"`
	Direction   entity.Direction   `json:"direction"`
	Percentage  float64            `json:"percentage"`
	ExtremeType entity.ExtremeType `json:"extremeType"`
	TimeValue   int                `json:"timeValue"`
	TimeUnit    entity.TimeUnit    `json:"timeUnit"`
}

type alarmIDCmd struct {
	AlarmID string `json:"alarmId"`
}

func (s *Server) dispatch(ctx context.Context, c *Client, msg message) {
	// client ops run synchronously against the engine, one at a time per
	// connection
	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	switch msg.Action {
	case actionAddAsset:
		var cmd addAssetCmd
		if !decodeCmd(c, msg.Data, &cmd) {
			return
		}
		asset, err := s.monitor.AddAsset(ctx, cmd.Pair)
		if err != nil {
			s.replyErr(c, err)
			return
		}
		s.hub.Broadcast(eventAssetAdded, map[string]any{"asset": asset})

	case actionRemoveAsset:
		var cmd removeAssetCmd
		if !decodeCmd(c, msg.Data, &cmd) {
			return
		}
		if err := s.monitor.RemoveAsset(ctx, cmd.Ticker); err != nil {
			s.replyErr(c, err)
			return
		}
		s.hub.Broadcast(eventAssetRemoved, map[string]any{"ticker": cmd.Ticker})

	case actionAddAlarm:
		var cmd addAlarmCmd
		if !decodeCmd(c, msg.Data, &cmd) {
			return
		}
		alarm, err := s.addAlarm(ctx, cmd)
		if err != nil {
			s.replyErr(c, err)
			return
		}
		s.hub.Broadcast(eventAlarmAdded, map[string]any{"alarm": alarm})

	case actionRemoveAlarm:
		var cmd alarmIDCmd
		if !decodeCmd(c, msg.Data, &cmd) {
			return
		}
		if err := s.monitor.RemoveAlarm(ctx, cmd.AlarmID); err != nil {
			s.replyErr(c, err)
			return
		}
		s.hub.Broadcast(eventAlarmRemoved, map[string]any{"alarmId": cmd.AlarmID})

	case actionRestartAlarm:
		var cmd alarmIDCmd
		if !decodeCmd(c, msg.Data, &cmd) {
			return
		}
		if err := s.monitor.RestartAlarm(ctx, cmd.AlarmID); err != nil {
			s.replyErr(c, err)
			return
		}
		s.hub.Broadcast(eventAlarmRestarted, map[string]any{"alarmId": cmd.AlarmID})

	default:
		c.reply(eventError, errorPayload{Message: "unknown action"})
	}
}

func (s *Server) addAlarm(ctx context.Context, cmd addAlarmCmd) (entity.Alarm, error) {
	switch cmd.Type {
	case entity.AlarmTarget:
		return s.monitor.AddTargetAlarm(ctx, cmd.Ticker, cmd.TargetPrice, cmd.Direction)
	case entity.AlarmExtreme:
		return s.monitor.AddExtremeAlarm(ctx, cmd.Ticker, cmd.Percentage, cmd.ExtremeType)
	case entity.AlarmTimeframe:
		return s.monitor.AddTimeframeAlarm(ctx, cmd.Ticker, cmd.Percentage, cmd.Direction, cmd.TimeValue, cmd.TimeUnit)
	default:
		return entity.Alarm{}, monitor.ErrValidation
	}
}

func (s *Server) replyErr(c *Client, err error) {
	c.reply(eventError, errorPayload{Message: err.Error()})
}

func decodeCmd(c *Client, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		c.reply(eventError, errorPayload{Message: "malformed command payload"})
		return false
	}
	return true
}
