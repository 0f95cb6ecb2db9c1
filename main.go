// ABOUTME: Entry point for the spruce scheduler CLI and MCP server
// ABOUTME: All commands live in the cli package
package main

import "github.com/harperreed/spruce/cli"

const version = "0.2.0"

func main() {
	cli.Execute(version)
}
