package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/df07/go-progressive-bridge/internal/config"
	"github.com/df07/go-progressive-bridge/pkg/core"
	"github.com/df07/go-progressive-bridge/pkg/host"
	"github.com/df07/go-progressive-bridge/pkg/scene"
	"github.com/df07/go-progressive-bridge/pkg/session"
)

// Message types
const (
	MsgOptions   = "options"
	MsgDragStart = "dragStart"
	MsgDragEnd   = "dragEnd"
	MsgResize    = "resize"
	MsgFocus     = "focus"
	MsgCamera    = "camera"

	MsgSession = "session"
	MsgFrame   = "frame"
	MsgConsole = "console"
	MsgError   = "error"
)

const (
	sendBuffer    = 16
	consoleBuffer = 64
	writeWait     = 10 * time.Second
)

// ClientMessage is a viewer request
type ClientMessage struct {
	Type       string          `json:"type"`
	Options    json.RawMessage `json:"options,omitempty"`
	Width      int             `json:"width,omitempty"`
	Height     int             `json:"height,omitempty"`
	PixelRatio float64         `json:"pixelRatio,omitempty"`
	Focused    *bool           `json:"focused,omitempty"`
	Camera     *CameraMessage  `json:"camera,omitempty"`
}

// CameraMessage moves the camera; absent fields keep their value
type CameraMessage struct {
	Center *[3]float64 `json:"center,omitempty"`
	LookAt *[3]float64 `json:"lookAt,omitempty"`
	VFov   float64     `json:"vfov,omitempty"`
}

// ServerMessage is pushed to the viewer
type ServerMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Scene     string          `json:"scene,omitempty"`
	Image     string          `json:"image,omitempty"` // Base64 encoded PNG
	Samples   int             `json:"samples,omitempty"`
	State     string          `json:"state,omitempty"`
	Console   *ConsoleMessage `json:"console,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// connection owns one viewer: a headless stage, its frame loop and the
// session mounted into it. Only the loop goroutine touches the session; the
// reader reaches it through Loop.Post and a single writer owns the socket.
type connection struct {
	id     string
	server *Server
	conn   *websocket.Conn
	logger zerolog.Logger

	stage   *host.Stage
	session *session.Session

	send    chan ServerMessage
	console chan ConsoleMessage

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// handleSession upgrades to a websocket and mounts a session for its lifetime
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	sceneName := query.Get("scene")
	if sceneName == "" {
		sceneName = defaultScene
	}
	root, camera, err := scene.Preset(sceneName)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	width, err := parseIntParam(query.Get("width"), "width", s.cfg.Width, 1, maxViewport)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	height, err := parseIntParam(query.Get("height"), "height", s.cfg.Height, 1, maxViewport)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if limit := s.cfg.MaxSessions; limit > 0 && s.Connections() >= limit {
		writeJSONError(w, http.StatusServiceUnavailable, "too many sessions")
		return
	}

	connID, err := gonanoid.New()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to allocate connection id")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &connection{
		id:      connID,
		server:  s,
		conn:    ws,
		send:    make(chan ServerMessage, sendBuffer),
		console: make(chan ConsoleMessage, consoleBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	defer c.close()

	c.logger = zerolog.New(zerolog.MultiLevelWriter(s.cfg.LogOutput, newConsoleWriter(c.console))).
		With().
		Timestamp().
		Str("conn", connID).
		Logger()

	c.stage = host.NewHeadlessStage(camera, width, height, c)

	var observer session.Observer = session.NopObserver{}
	if s.cfg.Metrics != nil {
		observer = s.cfg.Metrics
	}

	base := s.base()
	sess, err := session.Mount(ctx, c.stage, root, &base,
		session.WithLogger(c.logger),
		session.WithRendererLogger(c.logger),
		session.WithObserver(observer),
	)
	if err != nil {
		_ = ws.WriteJSON(ServerMessage{Type: MsgError, Error: err.Error()})
		return
	}
	c.session = sess

	// Registered only once fully built, so base option broadcasts never see
	// a half-initialised connection
	if !s.register(c) {
		sess.Unmount()
		_ = ws.WriteJSON(ServerMessage{Type: MsgError, Error: "too many sessions"})
		return
	}
	defer s.unregister(connID)

	if m := s.cfg.Metrics; m != nil {
		m.ConnectionsActive.Inc()
		defer m.ConnectionsActive.Dec()
	}

	s.logger.Info().
		Str("conn", connID).
		Str("session", sess.ID()).
		Str("scene", sceneName).
		Str("ip", r.RemoteAddr).
		Msg("Viewer connected")

	c.queue(ServerMessage{Type: MsgSession, SessionID: sess.ID(), Scene: sceneName})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()
	go func() {
		defer wg.Done()
		c.runLoop()
	}()

	c.readLoop()
	c.close()
	wg.Wait()

	s.logger.Info().Str("conn", connID).Int("renders", sess.Renders()).Msg("Viewer disconnected")
}

// runLoop drives the stage at the configured rate, then unmounts on the
// same goroutine once the connection context ends
func (c *connection) runLoop() {
	err := c.stage.Loop.Run(c.ctx, float64(c.server.cfg.FPS))
	c.session.Unmount()
	if err != nil && c.ctx.Err() == nil {
		c.logger.Error().Err(err).Msg("frame loop stopped")
	}
}

func (c *connection) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.queueError(fmt.Errorf("malformed message: %w", err))
			continue
		}
		if m := c.server.cfg.Metrics; m != nil {
			m.MessagesReceived.WithLabelValues(msg.Type).Inc()
		}
		if err := c.handleMessage(msg); err != nil {
			c.queueError(err)
		}
	}
}

// handleMessage validates msg on the reader goroutine and posts its effect
// to the frame loop
func (c *connection) handleMessage(msg ClientMessage) error {
	loop := c.stage.Loop

	switch msg.Type {
	case MsgOptions:
		if len(msg.Options) == 0 {
			return fmt.Errorf("options message without options")
		}
		if err := validatePatch(msg.Options); err != nil {
			return err
		}
		opts, err := config.DecodeOptions(msg.Options, ".json")
		if err != nil {
			return err
		}
		c.applyOptions(opts)

	case MsgDragStart:
		loop.Post(c.stage.Controls.Start)

	case MsgDragEnd:
		loop.Post(c.stage.Controls.End)

	case MsgResize:
		if msg.Width <= 0 || msg.Height <= 0 || msg.Width > maxViewport || msg.Height > maxViewport {
			return fmt.Errorf("invalid viewport %dx%d", msg.Width, msg.Height)
		}
		ratio := msg.PixelRatio
		if ratio <= 0 {
			ratio = 1
		}
		loop.Post(func() { c.stage.Viewport.Resize(msg.Width, msg.Height, ratio) })

	case MsgFocus:
		if msg.Focused == nil {
			return fmt.Errorf("focus message without focused")
		}
		focused := *msg.Focused
		loop.Post(func() { c.stage.Viewport.SetFocus(focused) })

	case MsgCamera:
		if msg.Camera == nil {
			return fmt.Errorf("camera message without camera")
		}
		override := cameraOverride(*msg.Camera)
		loop.Post(func() { c.moveCamera(override) })

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

func cameraOverride(m CameraMessage) scene.CameraConfig {
	var override scene.CameraConfig
	if m.Center != nil {
		override.Center = core.NewVec3(m.Center[0], m.Center[1], m.Center[2])
	}
	if m.LookAt != nil {
		override.LookAt = core.NewVec3(m.LookAt[0], m.LookAt[1], m.LookAt[2])
	}
	override.VFov = m.VFov
	return override
}

// moveCamera applies a camera jump. Outside a drag it is wrapped in a
// start/end pair so the session resets and re-renders.
func (c *connection) moveCamera(override scene.CameraConfig) {
	camera := c.stage.Camera
	camera.Set(scene.MergeCameraConfig(camera.Config(), override))

	controls := c.stage.Controls
	if !controls.Dragging() {
		controls.Start()
		controls.End()
	}
}

// applyOptions posts an options update to the frame loop
func (c *connection) applyOptions(opts session.Options) {
	c.stage.Loop.Post(func() {
		if err := c.session.Update(opts); err != nil {
			c.queueError(err)
		}
	})
}

// Present implements renderer.Surface. It runs on the loop goroutine and
// drops the frame when the viewer is behind.
func (c *connection) Present(frame *image.RGBA) {
	if c.session == nil || len(c.send) >= cap(c.send)-1 {
		return
	}

	data, err := imageToBase64PNG(frame)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode frame")
		return
	}
	c.queue(ServerMessage{
		Type:    MsgFrame,
		Image:   data,
		Samples: c.session.Renderer().TotalSamples(),
		State:   c.session.State().String(),
	})
}

func (c *connection) queue(msg ServerMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
	}
}

func (c *connection) queueError(err error) {
	c.queue(ServerMessage{Type: MsgError, Error: err.Error()})
}

// writeLoop is the only goroutine writing to the socket
func (c *connection) writeLoop() {
	for {
		var msg ServerMessage
		select {
		case msg = <-c.send:
		case line := <-c.console:
			msg = ServerMessage{Type: MsgConsole, Console: &line}
		case <-c.ctx.Done():
			return
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			c.close()
			return
		}
		if m := c.server.cfg.Metrics; m != nil && msg.Type == MsgFrame {
			m.FramesSent.Inc()
		}
	}
}

// close ends the loop and unblocks the reader
func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
