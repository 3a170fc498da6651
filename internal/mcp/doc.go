// Package mcp exposes the knowledge agent as Model Context Protocol tools
// over stdio, so editors and other agents can ask questions, search the
// knowledge base and inspect stored sessions.
package mcp
