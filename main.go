package main

import "github.com/atikulmunna/memlens/internal/cmd"

func main() {
	cmd.Execute()
}
