package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livecam/camcore/pkg/control"
	"github.com/livecam/camcore/pkg/driver"
	"github.com/livecam/camcore/pkg/driver/availability"
	"github.com/livecam/camcore/pkg/session"
)

const (
	jpegQuality  = 80
	writeTimeout = 5 * time.Second
)

// Messages sent to the viewer as text frames. Video frames are binary JPEG
// frames.
type statusMessage struct {
	Type       string   `json:"type"`
	Message    string   `json:"message,omitempty"`
	Width      int      `json:"width,omitempty"`
	Height     int      `json:"height,omitempty"`
	Monochrome bool     `json:"monochrome,omitempty"`
	Exposure   *float64 `json:"exposureMs,omitempty"`
}

// Messages received from the viewer. Any message counts as a heartbeat.
type clientMessage struct {
	Type         string   `json:"type"`
	AutoExposure bool     `json:"autoExposure"`
	ExposureMS   *float64 `json:"exposureMs,omitempty"`
	Gain         *float64 `json:"gain,omitempty"`
	ROIPreset    *int     `json:"roiPreset,omitempty"`
	FrameRate    *float64 `json:"frameRate,omitempty"`
}

type deviceInfo struct {
	Kind   driver.BackendKind `json:"kind"`
	Handle string             `json:"handle"`
	Label  string             `json:"label"`
}

type server struct {
	manager      *driver.Manager
	registry     *session.Registry
	previewWidth int
	upgrader     websocket.Upgrader
}

func newServer(manager *driver.Manager, registry *session.Registry, previewWidth int) *server {
	return &server{
		manager:      manager,
		registry:     registry,
		previewWidth: previewWidth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/ws", s.handleStream)
	return mux
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func (s *server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := make([]deviceInfo, 0)
	for _, id := range s.manager.Enumerate() {
		devices = append(devices, deviceInfo{Kind: id.Kind, Handle: id.Handle, Label: id.Label})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(devices); err != nil {
		logger.Warnf("devices: %v", err)
	}
}

// conn serializes writes; gorilla/websocket allows one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *conn) writeFrame(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("upgrade: %v", err)
		return
	}
	defer ws.Close()
	c := &conn{ws: ws}

	token := session.NewToken()
	sess, err := s.registry.Start(token)
	if err != nil {
		logger.Infof("viewer %s refused: %v", token, err)
		c.writeJSON(statusMessage{Type: "error", Message: availability.Message(err)})
		return
	}
	defer s.registry.End(token)

	capab := sess.Capability()
	c.writeJSON(statusMessage{
		Type:       "started",
		Width:      capab.MaxWidth,
		Height:     capab.MaxHeight,
		Monochrome: capab.Monochrome,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		s.readControls(c, token, sess)
	}()

	var buf bytes.Buffer
	for {
		f, err := sess.Stream().Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.writeJSON(statusMessage{Type: "error", Message: availability.Message(err)})
			}
			return
		}

		buf.Reset()
		if err := jpeg.Encode(&buf, f.Thumbnail(s.previewWidth), &jpeg.Options{Quality: jpegQuality}); err != nil {
			logger.Warnf("encode frame %d: %v", f.Sequence(), err)
			continue
		}
		if err := c.writeFrame(buf.Bytes()); err != nil {
			logger.Debugf("viewer %s gone: %v", token, err)
			return
		}
	}
}

// readControls applies settings sent by the viewer until the connection
// closes.
func (s *server) readControls(c *conn, token session.Token, sess *session.Session) {
	ctrl := control.New()
	for {
		var msg clientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if _, ok := err.(*json.SyntaxError); ok {
				logger.Debugf("viewer %s sent bad json: %v", token, err)
				continue
			}
			return
		}
		s.registry.Touch(token)

		if msg.Type != "settings" {
			continue
		}
		err := ctrl.Apply(sess.Source(), sess.Capability(), control.Settings{
			AutoExposure:   msg.AutoExposure,
			ExposureTimeMS: msg.ExposureMS,
			AnalogGain:     msg.Gain,
			ROIPreset:      msg.ROIPreset,
			FrameRate:      msg.FrameRate,
		})
		reply := statusMessage{Type: "settings"}
		if err != nil {
			reply.Type = "rejected"
			reply.Message = availability.Message(err)
		}
		if cur := ctrl.Current(); !cur.AutoExposure {
			reply.Exposure = cur.ExposureTimeMS
		}
		if err := c.writeJSON(reply); err != nil {
			return
		}
	}
}
