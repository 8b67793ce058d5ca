// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"os"

	"github.com/ironcore-dev/engine-setup/cmd/engine-setup/app"
	ctrl "sigs.k8s.io/controller-runtime"
)

func main() {
	ctx := ctrl.SetupSignalHandler()
	log := ctrl.Log.WithName("main")

	if err := app.Command().ExecuteContext(ctx); err != nil {
		if errors.Is(err, app.ErrUserAborted) {
			log.Info("Setup aborted by user", "Reason", err.Error())
			os.Exit(2)
		}
		log.Error(err, "error running engine-setup")
		os.Exit(1)
	}
}
