// Package driving defines the interfaces that external actors call INTO core.
//
// These are the "driving" or "primary" ports in hexagonal architecture.
// The CLI, the MCP server and the embeddable Engine depend on them.
package driving
