// Command spice runs sql against a Spice runtime or the Spice cloud from the terminal.
package main

func main() {
	Execute()
}
