// Command poebot is the local runner: it serves the example echo bot behind
// the protocol dispatcher and doubles as a one-shot client for querying
// remote bots.
package main

import (
	"os"

	_ "github.com/tbourn/go-bot-protocol/docs"
)

// @title        Poe Bot Protocol Server
// @version      1.0
// @description  Chat-completion bot protocol over HTTP with Server-Sent Events.
// @BasePath     /
func main() {
	os.Exit(execute())
}
