package outlinesvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hazyhaar/domoutline/dommodel"
	"github.com/hazyhaar/domoutline/kit"
)

// RegisterHTTP mounts the outline routes on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	eps := s.Endpoints()
	r.Get("/outline/rows", s.handle(eps.Rows, decodeRows))
	r.Delete("/outline/selection", s.handle(eps.Forget, func(*http.Request) (any, error) { return &ForgetRequest{}, nil }))
	r.Route("/outline/nodes/{id}", func(r chi.Router) {
		r.Post("/select", s.handle(eps.Select, decodeNode))
		r.Post("/expand", s.handle(eps.Expand, decodeExpand(true)))
		r.Post("/collapse", s.handle(eps.Expand, decodeExpand(false)))
		r.Post("/reveal", s.handle(eps.Reveal, decodeNode))
		r.Post("/show-all", s.handle(eps.ShowAll, decodeNode))
		r.Post("/limit", s.handle(eps.SetLimit, decodeLimit))
	})
}

// Handler returns a standalone router with request IDs and panic recovery.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	s.RegisterHTTP(r)
	return r
}

type httpDecoder func(r *http.Request) (any, error)

func (s *Service) handle(ep kit.Endpoint, decode httpDecoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := kit.WithTransport(r.Context(), kit.TransportHTTP)
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(r.Context()))
		resp, err := ep(ctx, req)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ErrUnknownNode):
		status = http.StatusNotFound
	case errors.Is(err, ErrNoRow):
		status = http.StatusConflict
	case errors.Is(err, ErrNoStore):
		status = http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func nodeID(r *http.Request) (dommodel.NodeID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errors.Join(ErrBadRequest, err)
	}
	return dommodel.NodeID(id), nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Join(ErrBadRequest, err)
	}
	return n, nil
}

func decodeRows(r *http.Request) (any, error) {
	offset, err := queryInt(r, "offset")
	if err != nil {
		return nil, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return nil, err
	}
	return &RowsRequest{Offset: offset, Limit: limit}, nil
}

func decodeNode(r *http.Request) (any, error) {
	id, err := nodeID(r)
	if err != nil {
		return nil, err
	}
	return &NodeRequest{Node: id}, nil
}

func decodeExpand(expanded bool) httpDecoder {
	return func(r *http.Request) (any, error) {
		id, err := nodeID(r)
		if err != nil {
			return nil, err
		}
		return &ExpandRequest{Node: id, Expanded: expanded}, nil
	}
}

func decodeLimit(r *http.Request) (any, error) {
	id, err := nodeID(r)
	if err != nil {
		return nil, err
	}
	n, err := queryInt(r, "n")
	if err != nil {
		return nil, err
	}
	return &LimitRequest{Node: id, Limit: n}, nil
}
