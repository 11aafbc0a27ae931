// Command retriever is the CLI entrypoint; see cmd.Execute for the flag
// surface and the engine package for the crawl itself.
package main

import "github.com/lukemcguire/retriever/cmd"

func main() {
	cmd.Execute()
}
