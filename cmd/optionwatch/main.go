package main

import (
	_ "time/tzdata"

	"optionwatch/internal/cli"
)

func main() {
	cli.Execute()
}
