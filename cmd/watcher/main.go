package main

import "github.com/api3dao/wallet-watcher/internal/cli"

func main() {
	cli.Execute()
}
