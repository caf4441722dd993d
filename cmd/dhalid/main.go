package main

import "github.com/dhali-org/dhalid/internal/cli"

func main() {
	cli.Execute()
}
