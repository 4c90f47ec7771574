// cmd/libraryms/main.go
package main

import "libraryms/cmd/libraryms/commands"

func main() {
	commands.Execute()
}
