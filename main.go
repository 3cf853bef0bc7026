package main

import "trafficcam-capture/cmd"

func main() {
	cmd.Execute()
}
