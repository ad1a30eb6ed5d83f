package main

import (
	"github.com/Irvise/gprbuild/cmd"
	"github.com/Irvise/gprbuild/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
