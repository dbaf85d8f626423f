// Command registryctl imports registry exports and maintains the registry
// from the command line.
package main

func main() {
	Execute()
}
