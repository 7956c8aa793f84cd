package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"snapquiz-service/internal/app"
	"snapquiz-service/internal/domain"
	"snapquiz-service/internal/pkg/logger"
)

// WSHandler exposes the session controller to the UI over a websocket:
// state snapshots out, user actions in.
type WSHandler struct {
	controller *app.SessionController
	log        *logger.Logger
	upgrader   websocket.Upgrader
}

func NewWSHandler(controller *app.SessionController, log *logger.Logger) *WSHandler {
	return &WSHandler{
		controller: controller,
		log:        log.With("service", "WSHandler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type captureImagePayload struct {
	Image string `json:"image"` // base64-encoded image bytes
	Mime  string `json:"mime"`
}

type historyEntryPayload struct {
	ID string `json:"id"`
}

type requestHintPayload struct {
	Level int `json:"level"`
}

type hintPayload struct {
	ItemID string `json:"itemId"`
	Level  int    `json:"level"`
	Text   string `json:"text"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and wires the connection into the session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.controller.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// send is never closed; dispatch goroutines may outlive the read loop,
	// so the writer exits via closeSignals instead.
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					h.log.Debug("ws write error", "error", err)
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: snap}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, inbound, send, closeSignals)
	}

	close(closeSignals)
	<-updatesDone
	<-writerDone
}

// dispatch routes one inbound action. Capture and hint requests block on the
// remote model, so they run off the read loop; delete and reset stay
// available while a generation is in flight.
func (h *WSHandler) dispatch(r *http.Request, inbound inboundMessage, send chan outboundMessage[any], closeSignals <-chan struct{}) {
	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	switch inbound.Type {
	case "captureImage":
		var payload captureImagePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			emit(errorMessage("invalid captureImage payload"))
			return
		}
		image, err := base64.StdEncoding.DecodeString(payload.Image)
		if err != nil || len(image) == 0 {
			emit(errorMessage("invalid image encoding"))
			return
		}
		go func() {
			if err := h.controller.SubmitImage(r.Context(), image, payload.Mime); err != nil {
				emit(errorMessage(err.Error()))
			}
		}()
	case "selectHistory":
		var payload historyEntryPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			emit(errorMessage("invalid selectHistory payload"))
			return
		}
		if err := h.controller.SelectHistoryEntry(payload.ID); err != nil {
			emit(errorMessage(err.Error()))
		}
	case "deleteHistory":
		var payload historyEntryPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			emit(errorMessage("invalid deleteHistory payload"))
			return
		}
		h.controller.DeleteHistoryEntry(r.Context(), payload.ID)
	case "advance":
		if err := h.controller.Advance(); err != nil {
			emit(errorMessage(err.Error()))
		}
	case "requestHint":
		var payload requestHintPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			emit(errorMessage("invalid requestHint payload"))
			return
		}
		level := domain.HintLevel(payload.Level)
		itemID := ""
		if snap := h.controller.Snapshot(); snap.CurrentQuizSet != nil && snap.CurrentQuestionIndex < len(snap.CurrentQuizSet.Items) {
			itemID = snap.CurrentQuizSet.Items[snap.CurrentQuestionIndex].ID
		}
		go func() {
			text, err := h.controller.RequestHint(r.Context(), level)
			if err != nil {
				emit(errorMessage(err.Error()))
				return
			}
			emit(outboundMessage[any]{Type: "hint", Payload: hintPayload{ItemID: itemID, Level: payload.Level, Text: text}})
		}()
	case "reset":
		if err := h.controller.Reset(); err != nil {
			emit(errorMessage(err.Error()))
		}
	default:
		emit(errorMessage("unsupported message type"))
	}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}
