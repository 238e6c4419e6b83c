/*
Copyright the Business Partner Agent contributors.

SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const topicPath = "/topic/{topic}"

// NewHTTPHandler returns the webhook ingress: POST /topic/{topic} with the
// event record as the request body, the path layout the agent's webhook
// emitter uses. Events are dispatched before the response is written so a
// well-behaved emitter that posts sequentially gets in-order processing.
func NewHTTPHandler(d *Dispatcher) http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc(topicPath, func(w http.ResponseWriter, r *http.Request) {
		receiveTopic(w, r, d)
	}).Methods(http.MethodPost)

	return router
}

// NewServer returns an HTTP server for the webhook ingress, ready for
// ListenAndServe.
func NewServer(addr string, d *Dispatcher) *http.Server {
	handler := cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodPost},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With"},
		},
	).Handler(NewHTTPHandler(d))

	return &http.Server{Addr: addr, Handler: handler}
}

func receiveTopic(w http.ResponseWriter, r *http.Request, d *Dispatcher) {
	if r.ContentLength == 0 {
		http.Error(w, "empty payload", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Errorf("reading webhook body: %s", err)
		http.Error(w, "failed to read payload", http.StatusInternalServerError)

		return
	}

	d.Dispatch(mux.Vars(r)["topic"], body)

	w.WriteHeader(http.StatusOK)
}
