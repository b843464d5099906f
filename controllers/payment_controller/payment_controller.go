package payment_controller

import (
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/services/click"
	"github.com/joy095/roomslot/services/payme"
)

// maxBodyBytes bounds provider request bodies.
const maxBodyBytes = 1 << 20

// PaymentController exposes the provider endpoints. Both protocols answer with
// HTTP 200 and carry outcomes in their own envelopes.
type PaymentController struct {
	payme *payme.Server
	click *click.Adapter
}

func NewPaymentController(paymeServer *payme.Server, clickAdapter *click.Adapter) *PaymentController {
	return &PaymentController{payme: paymeServer, click: clickAdapter}
}

func (pc *PaymentController) Payme(c *gin.Context) {
	resp := pc.payme.Handle(c.Request.Context(), c.GetHeader("Authorization"), readPayme(c))
	c.JSON(http.StatusOK, resp)
}

func (pc *PaymentController) Click(c *gin.Context) {
	resp := pc.click.Handle(c.Request.Context(), readClick(c))
	c.JSON(http.StatusOK, resp)
}

// PaymeThrottled replies to a rate-limited payme call with a JSON-RPC error.
func PaymeThrottled(c *gin.Context) {
	logger.WarnLogger.Warnf("Throttled payme call from %s", c.ClientIP())
	c.JSON(http.StatusOK, payme.Busy(readPayme(c)))
}

// ClickThrottled replies to a rate-limited click call with a retryable error object.
func ClickThrottled(c *gin.Context) {
	logger.WarnLogger.Warnf("Throttled click call from %s", c.ClientIP())
	c.JSON(http.StatusOK, click.Busy(readClick(c)))
}

func readPayme(c *gin.Context) []byte {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		logger.WarnLogger.Warnf("Failed to read payme request body: %v", err)
	}
	return body
}

func readClick(c *gin.Context) url.Values {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.Request.ParseForm(); err != nil {
		logger.WarnLogger.Warnf("Failed to parse click form: %v", err)
	}
	return c.Request.Form
}
