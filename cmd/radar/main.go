package main

import "memecoin-radar/internal/cli"

func main() {
	cli.Execute()
}
