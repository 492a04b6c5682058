package main

import "github.com/synheart/synheart-collector/internal/cli"

func main() {
	cli.Execute()
}
