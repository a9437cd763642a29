package main

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

func main() {
	app := mustBootstrapCioAPI()
	defer app.Close()

	if err := app.Run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("cio-api stopped", "error", err.Error())
		panic(err)
	}
}
