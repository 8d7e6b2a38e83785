package main

import "budgetfx/internal/cli"

func main() {
	cli.Execute()
}
