// Command warden runs the plugin host and manages installed plugins.
package main

func main() {
	Execute()
}
