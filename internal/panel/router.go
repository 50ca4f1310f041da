package panel

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"net/http"

	"avatarstream/native/internal/domain"
	"avatarstream/native/internal/session"
	"avatarstream/native/internal/status"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

//go:embed index.html
var indexHTML []byte

// Actions is the session workflow driven by the panel buttons.
type Actions interface {
	NewSession(ctx context.Context, avatar, voice string) error
	Start(ctx context.Context) error
	SendTask(ctx context.Context, text string, kind domain.TaskType) error
	ToggleAudio() string
	Close(ctx context.Context) error
	State() session.State
	AudioLabel() string
}

type newRequest struct {
	AvatarName string `json:"avatar_name"`
	VoiceID    string `json:"voice_id"`
}

type taskRequest struct {
	Text     string `json:"text"`
	TaskType string `json:"task_type"`
}

type statusResponse struct {
	State      string   `json:"state"`
	AudioLabel string   `json:"audio_label"`
	Lines      []string `json:"lines"`
}

// Defaults pre-fill the avatar and voice inputs.
type Defaults struct {
	AvatarName string
	VoiceID    string
}

// SetupRouter builds the control panel: the page, one endpoint per button
// and a websocket streaming the status transcript.
func SetupRouter(ctx context.Context, actions Actions, statusLog *status.Log, defaults Defaults) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})

	api := r.Group("/api")

	api.GET("/defaults", func(c *gin.Context) {
		c.JSON(http.StatusOK, newRequest{AvatarName: defaults.AvatarName, VoiceID: defaults.VoiceID})
	})

	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, statusResponse{
			State:      actions.State().String(),
			AudioLabel: actions.AudioLabel(),
			Lines:      statusLog.Lines(),
		})
	})

	api.POST("/new", func(c *gin.Context) {
		var req newRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.AvatarName == "" {
			req.AvatarName = defaults.AvatarName
		}
		if req.VoiceID == "" {
			req.VoiceID = defaults.VoiceID
		}
		respond(c, actions.NewSession(c.Request.Context(), req.AvatarName, req.VoiceID))
	})

	api.POST("/start", func(c *gin.Context) {
		respond(c, actions.Start(c.Request.Context()))
	})

	api.POST("/task", func(c *gin.Context) {
		var req taskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind, err := domain.ParseTaskType(req.TaskType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respond(c, actions.SendTask(c.Request.Context(), req.Text, kind))
	})

	api.POST("/mic", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"audio_label": actions.ToggleAudio()})
	})

	api.POST("/close", func(c *gin.Context) {
		respond(c, actions.Close(c.Request.Context()))
	})

	api.GET("/ws", func(c *gin.Context) {
		serveStatusStream(ctx, c.Writer, c.Request, statusLog)
	})

	log.Info().Str("module", "panel").Msg("router setup")
	return r
}

func respond(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	var perr *domain.PreconditionError
	var serr *domain.ServerError
	switch {
	case errors.As(err, &perr):
		c.JSON(http.StatusConflict, gin.H{"error": perr.Message})
	case errors.As(err, &serr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "panel").Str("path", c.FullPath()).Msg("action failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
