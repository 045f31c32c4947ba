package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/meetsync/meetsync/internal/application/config"
)

type IceHandler struct {
	cfg *config.Config
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg}
}

// IceServers serves the ICE configuration clients dial with. TURN
// credentials are ephemeral, derived coturn-style from the shared
// static-auth-secret.
func (h *IceHandler) IceServers(c echo.Context) error {
	servers := []webrtc.ICEServer{
		{URLs: []string{h.cfg.StunURL}},
	}

	if h.cfg.TurnSecret != "" && h.cfg.TurnUDPURL != "" {
		expiration := time.Now().Add(time.Hour).Unix()
		username := fmt.Sprintf("%d", expiration)

		mac := hmac.New(sha1.New, []byte(h.cfg.TurnSecret))
		mac.Write([]byte(username))
		password := base64.StdEncoding.EncodeToString(mac.Sum(nil))

		urls := []string{h.cfg.TurnUDPURL}
		if h.cfg.TurnTCPURL != "" {
			urls = append(urls, h.cfg.TurnTCPURL)
		}

		servers = append(servers, webrtc.ICEServer{
			URLs:       urls,
			Username:   username,
			Credential: password,
		})
	}

	return c.JSON(http.StatusOK, servers)
}
