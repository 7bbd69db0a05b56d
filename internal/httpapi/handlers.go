package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"credpool-go/internal/credential"
	"credpool-go/internal/logging"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type handler struct {
	admin      *credential.Admin
	balanceLim *rate.Limiter
}

// respondError writes a management-style error envelope.
func respondError(c *gin.Context, status int, message string) {
	code := strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	if code == "" {
		code = "unknown_error"
	}
	c.JSON(status, gin.H{"error": gin.H{
		"message":   message,
		"code":      code,
		"http_code": status,
	}})
}

// respondCoreError maps a core credential.Error to its HTTP status per
// the upstream/local failure taxonomy to HTTP status codes, logging each
// occurrence under its normalized error kind.
func respondCoreError(c *gin.Context, err error) {
	cerr, ok := credential.AsError(err)
	if !ok {
		respondError(c, http.StatusInternalServerError, err.Error())
		logging.WithReq(c, nil).Warn(logging.ErrorKind(http.StatusInternalServerError, true))
		return
	}

	status := http.StatusInternalServerError
	switch cerr.Kind {
	case credential.KindNotFound:
		status = http.StatusNotFound
	case credential.KindConflict, credential.KindPrecondition:
		status = http.StatusBadRequest
	case credential.KindRefreshRejected, credential.KindRefreshTransient:
		status = http.StatusBadGateway
	case credential.KindNoEligibleCredential:
		status = http.StatusServiceUnavailable
	}
	respondError(c, status, cerr.Error())
	logging.WithReq(c, log.Fields{"credential_id": cerr.ID}).Warn(logging.ErrorKind(status, true))
}

func parseID(c *gin.Context) (int, bool) {
	raw := c.Param("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid credential id")
		return 0, false
	}
	return id, true
}

func (h *handler) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"credentials": h.admin.List()})
}

type addRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
	AuthMethod   string `json:"authMethod" binding:"required"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	ProfileArn   string `json:"profileArn"`
	Region       string `json:"region"`
	MachineID    string `json:"machineId"`
	ProxyURL     string `json:"proxyUrl"`
	Priority     int    `json:"priority"`
}

func (h *handler) add(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.admin.Add(c.Request.Context(), credential.NewCredentialRequest{
		RefreshToken: req.RefreshToken,
		AuthMethod:   credential.AuthMethod(req.AuthMethod),
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		ProfileArn:   req.ProfileArn,
		Region:       req.Region,
		MachineID:    req.MachineID,
		ProxyURL:     req.ProxyURL,
		Priority:     req.Priority,
	})
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *handler) delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.admin.Delete(id); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type disabledRequest struct {
	Disabled bool `json:"disabled"`
}

func (h *handler) setDisabled(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req disabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.admin.SetDisabled(id, req.Disabled); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

func (h *handler) setPriority(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.admin.SetPriority(id, req.Priority); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

type proxyRequest struct {
	ProxyURL *string `json:"proxyUrl"`
}

func (h *handler) setProxy(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.admin.SetProxy(id, req.ProxyURL); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (h *handler) resetFailure(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.admin.ResetFailure(id); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reset"})
}

func (h *handler) balance(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.balanceLim.Wait(c.Request.Context()); err != nil {
		respondError(c, http.StatusServiceUnavailable, "balance query rate-limited: "+err.Error())
		return
	}
	result, err := h.admin.Balance(c.Request.Context(), id)
	if err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) getMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": h.admin.GetMode()})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *handler) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	h.admin.SetMode(credential.Policy(req.Mode))
	c.JSON(http.StatusOK, gin.H{"mode": h.admin.GetMode()})
}

func (h *handler) cloudPassStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.admin.CloudPassStatus())
}

func (h *handler) refreshCloudPass(c *gin.Context) {
	if err := h.admin.RefreshCloudPass(c.Request.Context()); err != nil {
		respondCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refreshed"})
}
