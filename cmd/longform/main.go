// Command longform expands a short source document into a long,
// hierarchically structured document section by section.
package main

func main() {
	Execute()
}
