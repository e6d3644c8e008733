package main

import (
	"github.com/roomdrop/roomdrop/cmd"
	"github.com/roomdrop/roomdrop/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
