package main

import (
	"github.com/decklens/decklens/cmd/decklens/cmd"
)

func main() {
	cmd.Execute()
}
