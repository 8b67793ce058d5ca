// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package healthcheck

import (
	"net/http"

	"github.com/go-logr/logr"
)

// ConnectionChecker reports whether the connection to the hypervisor is alive.
type ConnectionChecker func() error

// HealthCheck serves the liveness of engine-setup itself, i.e. whether it still talks to the hypervisor.
type HealthCheck struct {
	Check ConnectionChecker
	Log   logr.Logger
}

func (h HealthCheck) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Check(); err != nil {
		h.Log.V(1).Error(err, "Hypervisor connection is not healthy")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
