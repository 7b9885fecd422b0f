// Command ragroute routes questions between a curated FAQ, a document
// corpus and free conversation, and serves the engine over MCP.
package main

func main() {
	Execute()
}
