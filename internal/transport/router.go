package transport

import "net/http"

type Handler interface {
	list(w http.ResponseWriter, r *http.Request)
	create(w http.ResponseWriter, r *http.Request)
	get(w http.ResponseWriter, r *http.Request)
	update(w http.ResponseWriter, r *http.Request)
	remove(w http.ResponseWriter, r *http.Request)
	expire(w http.ResponseWriter, r *http.Request)
	health(w http.ResponseWriter, r *http.Request)
	serviceTasks(w http.ResponseWriter, r *http.Request)
}

type router struct {
	h Handler
}

func NewRouter(h Handler) *router {
	return &router{h: h}
}

func (r *router) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("GET /{$}", r.h.list)
	mux.HandleFunc("POST /{$}", r.h.create)

	// literal routes win over /{id}
	mux.HandleFunc("GET /status", r.h.health)
	mux.HandleFunc("GET /taskslist", r.h.serviceTasks)
	mux.HandleFunc("POST /task-expire/{id}", r.h.expire)

	mux.HandleFunc("GET /{id}", r.h.get)
	mux.HandleFunc("PUT /{id}", r.h.update)
	mux.HandleFunc("DELETE /{id}", r.h.remove)

	return mux
}
