package handlers

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/template"

	"theater-site/internal/services"
	"theater-site/models"
)

//go:embed views
var viewsFS embed.FS

//go:embed static
var staticFS embed.FS

// ScannerFS is the door scanner app served under /scanner.
func ScannerFS() fs.FS {
	sub, err := fs.Sub(staticFS, "static/scanner")
	if err != nil {
		panic(err)
	}
	return sub
}

type PageHandler struct {
	content  *services.ContentService
	registry *template.Registry

	// stripeKey is the publishable key used by the catalog page.
	stripeKey string
}

func NewPageHandler(content *services.ContentService, stripePublishableKey string) *PageHandler {
	return &PageHandler{
		content:   content,
		registry:  template.NewRegistry(),
		stripeKey: stripePublishableKey,
	}
}

type pageData struct {
	Title     string
	Path      string
	Content   *models.SiteContent
	Query     map[string]string
	StripeKey string
}

// Page renders one of the embedded site pages with the current content.
func (h *PageHandler) Page(view, title string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		c, err := h.content.GetSiteContent(e.Request.Context())
		if err != nil {
			return apiError("page.GetSiteContent()", err)
		}

		q := map[string]string{}
		for k := range e.Request.URL.Query() {
			q[k] = e.Request.URL.Query().Get(k)
		}

		html, err := h.registry.LoadFS(viewsFS, "views/layout.html", "views/"+view+".html").Render(pageData{
			Title:     title,
			Path:      e.Request.URL.Path,
			Content:   c,
			Query:     q,
			StripeKey: h.stripeKey,
		})
		if err != nil {
			return apiError("page.Render("+view+")", err)
		}
		return e.HTML(http.StatusOK, html)
	}
}

// Content - The public site content document
func (h *PageHandler) Content(e *core.RequestEvent) error {
	c, err := h.content.GetSiteContent(e.Request.Context())
	if err != nil {
		return apiError("page.GetSiteContent()", err)
	}
	return e.JSON(http.StatusOK, c)
}

// Scanner serves the embedded scanner app. The route must end in {path...}.
func Scanner() func(e *core.RequestEvent) error {
	return apis.Static(ScannerFS(), true)
}
