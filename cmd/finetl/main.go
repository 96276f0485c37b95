package main

import "finance-etl/internal/cli"

func main() {
	cli.Execute()
}
