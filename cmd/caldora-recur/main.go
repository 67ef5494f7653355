package main

import "github.com/cyp0633/caldora-recur/internal/cli"

func main() {
	cli.Execute()
}
