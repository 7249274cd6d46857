package main

import (
	"github.com/joselara-terraform/test-rig-sub000/pkg/xc2sh"
)

func init() {
	xc2sh.SetupFlags()
}

func main() {
	xc2sh.Main()
}
