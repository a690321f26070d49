/*
CLI for moving payloads across a one-way optical channel as looping QR frames
*/
package main

import (
	"github.com/sharediffs/qrstream/cmd/qrstream/commands"
)

func main() {
	commands.Execute()
}
