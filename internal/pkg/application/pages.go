package application

import (
	"net/http"
)

type pageHandlers struct {
	svc Services
}

func (h *pageHandlers) login(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := h.svc.Pages.Login(w, "", ""); err != nil {
		h.svc.Log.Errorf("Failed to render login page: %s", err.Error())
	}
}

func (h *pageHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := h.svc.Pages.Dashboard(w, r.URL.Query().Get("tab"), h.svc.Dashboard)
	if err != nil {
		h.svc.Log.Errorf("Failed to render dashboard: %s", err.Error())
	}
}
