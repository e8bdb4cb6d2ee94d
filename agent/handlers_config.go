package agent

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/internal/sysconfig"
	"evalgo.org/deployhub/internal/templates"
)

func (a *Agent) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	ok(w, nil, a.templates.List(r.URL.Query().Get("template_type")))
}

func (a *Agent) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, found := a.templates.Get(id)
	if !found {
		a.writeError(w, r, fmt.Errorf("%w: template %s", storage.ErrNotFound, id))
		return
	}
	ok(w, nil, t)
}

func (a *Agent) handleTemplateContent(w http.ResponseWriter, r *http.Request) {
	content, err := a.templates.Content(mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, content)
}

func (a *Agent) handleTemplateCreate(w http.ResponseWriter, r *http.Request) {
	var req templates.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	t, err := a.templates.Create(req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, t.ID, t)
}

func (a *Agent) handleTemplateUpdate(w http.ResponseWriter, r *http.Request) {
	var req templates.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	t, err := a.templates.Update(mux.Vars(r)["id"], req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "template updated", t)
}

func (a *Agent) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.templates.Delete(mux.Vars(r)["id"]); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "template deleted", nil)
}

func (a *Agent) handleConfigList(w http.ResponseWriter, r *http.Request) {
	ok(w, nil, a.sysconfig.List())
}

func (a *Agent) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["config_key"]
	cfg, found := a.sysconfig.Get(key)
	if !found {
		a.writeError(w, r, fmt.Errorf("%w: system config %s", storage.ErrNotFound, key))
		return
	}
	ok(w, nil, cfg)
}

func (a *Agent) handleConfigCreate(w http.ResponseWriter, r *http.Request) {
	var req sysconfig.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	cfg, err := a.sysconfig.Create(req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "system config created", cfg)
}

func (a *Agent) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var req sysconfig.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	cfg, err := a.sysconfig.Update(mux.Vars(r)["config_key"], req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "system config updated", cfg)
}

func (a *Agent) handleConfigDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.sysconfig.Delete(mux.Vars(r)["config_key"]); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "system config deleted", nil)
}
