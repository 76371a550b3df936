// Package main is the entry point for paycore.
package main

func main() {
	Execute()
}
