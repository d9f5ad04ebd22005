// Kirjuri - Cloud Cost Scribe
// Observe. Reconcile. Record.
package main

func main() {
	Execute()
}
