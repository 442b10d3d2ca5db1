// Command schedulerctl is a thin client for the Request Orchestrator's HTTP
// API, grounded on adapter/cli/root.go's Cobra wiring (persistent flags,
// correlation-id-tagged pre/post run hooks) but talking to the orchestrator
// over HTTP rather than an in-process app.Container, since schedulerctl and
// cmd/scheduler are deployed as separate processes.
package main

func main() {
	Execute()
}
