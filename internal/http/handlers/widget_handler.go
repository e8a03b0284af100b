package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-livechat-backend/internal/widget"
)

// WidgetScript godoc
// @ID          widgetScript
// @Summary     Embeddable widget script
// @Description Self-configuring script; embed with
// @Description <script src=".../widget.js" data-chatbot-id="ID" async></script>.
// @Tags        Widget
// @Produce     application/javascript
// @Success     200  {string}  string  "JavaScript"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /widget.js [get]
func (h *Handlers) WidgetScript(c *gin.Context) {
	var buf bytes.Buffer
	if err := widget.RenderScript(&buf, h.script); err != nil {
		failDetail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to render widget", err.Error())
		return
	}
	c.Header("Cache-Control", scriptCacheControl(h.scriptMaxAge.Seconds()))
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", buf.Bytes())
}

// scriptCacheControl keeps intermediaries from serving a stale script unless
// a max-age was explicitly configured.
func scriptCacheControl(maxAgeSeconds float64) string {
	if maxAgeSeconds < 1 {
		return "no-cache, no-store, must-revalidate"
	}
	return "public, max-age=" + strconv.Itoa(int(maxAgeSeconds))
}
