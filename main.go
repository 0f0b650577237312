package main

import "github.com/jmehdipour/zoohub/cmd"

func main() {
	cmd.Execute()
}
