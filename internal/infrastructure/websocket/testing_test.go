package websocket

import "net/http"

func httpHandler(h *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/observer", h.ServeWS)
	return mux
}
