// noesisd is the Noesis backend: spreadsheet analysis and the streaming
// canvas-editing chat relay.
package main

func main() {
	execute()
}
