package weave

import (
	"encoding/json"
	"net/http"
)

type handler struct {
	engine *Engine
}

// HTTPHandler implements the handler required for executing queries over the
// conventional POST transport. The response body is the protocol envelope
// with data and errors keys.
func HTTPHandler(engine *Engine) http.Handler {
	return &handler{engine: engine}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "must be post", http.StatusBadRequest)
		return
	}
	var param Params
	if err := json.NewDecoder(r.Body).Decode(&param); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	param.Context = r.Context()

	resp := h.engine.Do(param)

	responseJSON, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(responseJSON)
}
