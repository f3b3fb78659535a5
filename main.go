package main

import "github.com/pakachere/liveclass/cmd"

func main() {
	cmd.Execute()
}
