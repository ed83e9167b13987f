package main

import "github.com/mbd888/riskoracle/internal/cli"

func main() {
	cli.Execute()
}
