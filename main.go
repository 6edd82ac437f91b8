package main

import "partialdump/internal/cli"

func main() {
	cli.Execute()
}
