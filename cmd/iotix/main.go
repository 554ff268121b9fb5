// iotix CLI - command-line interface for the device engine.
package main

func main() {
	Execute()
}
