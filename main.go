// The main package for the breachwatch executable.
package main

import (
	"github.com/BD4L/breachwatch/cmd"
)

func main() {
	cmd.Execute()
}
