package main

import (
	"github.com/luma/resplite/cmd"
)

func main() {
	cmd.Execute()
}
