package main

import "algo-trader/internal/cli"

func main() {
	cli.Execute()
}
