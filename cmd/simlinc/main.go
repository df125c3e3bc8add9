// Command simlinc is a command-line front end over pkg/simlin: the same
// open/check/run/patch/loops operations an embedder reaches through the FFI
// surface, exposed directly for scripting and debugging system dynamics
// models from a shell.
package main

func main() {
	Execute()
}
