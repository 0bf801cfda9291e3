package main

import "github.com/Noxter68/habit-tracking-sub001/cmd/engine/root"

func main() {
	root.Execute()
}
