// Package tools holds host execution adapters used by command handlers.
package tools
