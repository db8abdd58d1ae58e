// Package testdoubles provides spies for the admission observability interfaces.
//
// The spies record every call thread-safely, so they can be handed to code under test
// that runs concurrent operations.
package testdoubles
