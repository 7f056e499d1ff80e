// Command yetisearch manages and queries yetisearch indices from the shell.
package main

import "github.com/yetidevworks/yetisearch/internal/adapters/driving/cli"

func main() {
	cli.Execute()
}
