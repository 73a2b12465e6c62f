// Package controller is the operator end of an agent connection. It accepts
// agents, authenticates them, and drives the request/response exchanges
// the agent understands.
package controller
