// The main package for the buongiorno executable.
package main

import (
	"github.com/JakeFAU/buongiorno-bot/cmd"
)

func main() {
	cmd.Execute()
}
