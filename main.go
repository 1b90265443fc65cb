// The main package for the catalog-alerts executable.
package main

import (
	"github.com/JakeFAU/catalog-alerts/cmd"
)

func main() {
	cmd.Execute()
}
