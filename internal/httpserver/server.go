// Package httpserver exposes the web surface: Twilio webhooks, the media
// stream WebSocket, a text chat endpoint, outbound call triggers and the
// operator log stream.
package httpserver

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/twilio/twilio-go/twiml"

	"github.com/umakanthkeerthi/docai-calling-agent/internal/call"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/config"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/logs"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/middleware"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/triage"
	"github.com/umakanthkeerthi/docai-calling-agent/internal/vad"
)

const reminderText = "Hello. This is a reminder from your clinic about your upcoming appointment. Please call back if you need to reschedule. Goodbye."

// Responder drives the dialogue for both voice calls and text chat.
type Responder interface {
	Route(ctx context.Context, sessionID, text string) (string, error)
	Decision(sessionID string) triage.Decision
	End(sessionID string)
}

// Dialer places outbound calls.
type Dialer interface {
	Call(to, webhookURL string) (string, error)
}

// Deps are the collaborators the server hands to each call session. Archiver,
// Dialer and Broadcaster may be nil; the matching features degrade.
type Deps struct {
	Responder   Responder
	Transcriber call.Transcriber
	Synthesizer call.Synthesizer
	Archiver    call.Archiver
	Dialer      Dialer
	Broadcaster *logs.Broadcaster
}

// Server bundles the handlers and their dependencies.
type Server struct {
	cfg      config.Config
	deps     Deps
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:  cfg,
		deps: deps,
		// Twilio's stream client sends no browser origin.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// NewEcho creates a configured Echo instance with the shared middleware.
func NewEcho(cfg config.Config) *echo.Echo {
	e := echo.New()
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(middleware.TwilioAuth(func() string { return cfg.TwilioAuthToken }))
	return e
}

// Register mounts all routes.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.POST("/twilio/incoming", s.incomingCall)
	e.POST("/twilio/incoming_reminder", s.reminderCall)
	e.GET("/media-stream", s.mediaStream)

	e.POST("/chat", s.chat)
	e.POST("/api/make_call", s.makeCall)
	e.POST("/api/make_reminder_call", s.makeReminderCall)
	e.GET("/ws/logs", s.logStream)
}

// host is the externally visible host used in TwiML and webhook URLs.
func (s *Server) host(c echo.Context) string {
	if s.cfg.PublicHost != "" {
		return s.cfg.PublicHost
	}
	return c.Request().Host
}

// incomingCall answers a Twilio voice webhook with TwiML that connects the
// call's audio to the media stream socket.
func (s *Server) incomingCall(c echo.Context) error {
	if params, ok := c.Get("twilioParams").(map[string]string); ok {
		log.Printf("incoming call from %s, CallSid=%s", params["From"], params["CallSid"])
	}

	stream := &twiml.VoiceStream{Url: fmt.Sprintf("wss://%s/media-stream", s.host(c))}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	response, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

// reminderCall plays a fixed appointment reminder and hangs up.
func (s *Server) reminderCall(c echo.Context) error {
	pause := &twiml.VoicePause{Length: "1"}
	say := &twiml.VoiceSay{Message: reminderText}
	response, err := twiml.Voice([]twiml.Element{pause, say, &twiml.VoiceHangup{}})
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

// mediaStream owns one call: it upgrades the socket, builds a fresh gate and
// session, and pumps stream events until the call stops or the socket drops.
func (s *Server) mediaStream(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	gate := vad.NewGate(vad.NewDetector(s.cfg.VADAggressiveness), vad.DefaultConfig())
	session := call.NewSession(conn, gate, s.deps.Transcriber, s.deps.Responder, s.deps.Synthesizer, s.deps.Archiver, s.sink())
	defer s.deps.Responder.End(session.ID())

	ctx := c.Request().Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("media stream read failed: %v", err)
			}
			return nil
		}
		done, err := session.HandleEvent(ctx, data)
		if err != nil {
			log.Printf("media stream event failed: %v", err)
			return nil
		}
		if done {
			return nil
		}
	}
}

func (s *Server) sink() logs.Sink {
	if s.deps.Broadcaster != nil {
		return s.deps.Broadcaster
	}
	return logs.NopSink{}
}

// logStream attaches an operator client to the event broadcast.
func (s *Server) logStream(c echo.Context) error {
	if s.deps.Broadcaster == nil {
		return c.String(http.StatusServiceUnavailable, "log streaming disabled")
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	s.deps.Broadcaster.Attach(conn)
	defer func() {
		s.deps.Broadcaster.Detach(conn)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	Decision  string `json:"decision"`
}

// chat runs the same dialogue agent over plain JSON, mainly for testing the
// agent without placing a call.
func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return c.String(http.StatusBadRequest, "message is required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	reply, err := s.deps.Responder.Route(c.Request().Context(), req.SessionID, req.Message)
	if err != nil {
		log.Printf("chat agent failed: %v", err)
		return c.String(http.StatusInternalServerError, "agent unavailable")
	}
	return c.JSON(http.StatusOK, chatResponse{
		SessionID: req.SessionID,
		Response:  reply,
		Decision:  string(s.deps.Responder.Decision(req.SessionID)),
	})
}

type outboundCallRequest struct {
	To string `json:"to"`
}

type outboundCallResponse struct {
	Sid string `json:"sid"`
}

func (s *Server) makeCall(c echo.Context) error {
	return s.dial(c, "/twilio/incoming")
}

func (s *Server) makeReminderCall(c echo.Context) error {
	return s.dial(c, "/twilio/incoming_reminder")
}

func (s *Server) dial(c echo.Context, webhookPath string) error {
	if s.deps.Dialer == nil {
		return c.String(http.StatusServiceUnavailable, "outbound calling disabled")
	}
	var req outboundCallRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	if req.To == "" {
		return c.String(http.StatusBadRequest, "to is required")
	}

	webhookURL := fmt.Sprintf("https://%s%s", s.host(c), webhookPath)
	sid, err := s.deps.Dialer.Call(req.To, webhookURL)
	if err != nil {
		log.Printf("outbound call to %s failed: %v", req.To, err)
		return c.String(http.StatusBadGateway, "failed to place call")
	}
	return c.JSON(http.StatusOK, outboundCallResponse{Sid: sid})
}
