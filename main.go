package main

import "github.com/vecrl/vecrl/examples"

func main() {
	examples.A2C()
}
