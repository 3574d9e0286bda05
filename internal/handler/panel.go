// internal/handler/panel.go
package handler

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed assets/index.html
var panelPage []byte

// ServePanelPage serves the embedded operator panel. The touchscreen
// browser runs this page full screen in kiosk mode.
func ServePanelPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", panelPage)
}
