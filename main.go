package main

import "github.com/kasuboski/bangumiz/cmd"

func main() {
	cmd.Execute()
}
